package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/teris-io/cli"
	"hackvm.dev/toolchain/pkg/asm"
	"hackvm.dev/toolchain/pkg/hack"
	"hackvm.dev/toolchain/pkg/jack"
	"hackvm.dev/toolchain/pkg/utils"
	"hackvm.dev/toolchain/pkg/vm"
)

var Description = strings.ReplaceAll(`
hackc is the unifying driver for the toolchain: given a set of .jack, .vm or .asm
inputs it classifies them by extension, refuses mixed-stage input sets and drives
whichever pipeline stage(s) are needed to reach a .hack binary (or, with -S, stops
after emitting the intermediate .asm). It does not merge independently compiled
.hack files, linking here is just the symbol resolution each stage already does.
`, "\n", " ")

var HackC = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The .jack, .vm or .asm files to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "The compiled output file (.hack, or .asm w/ -S)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("S", "Stop the pipeline after the assembly stage, emitting .asm").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("stdlib", "Links the Jack standard library ABI when compiling .jack input").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("typecheck", "Type-checks Jack input before lowering it").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("bootstrap", "Includes VM bootstrap code when lowering to .asm").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("optimize", "Runs the peephole-optimizing VM lowering pipeline").
		WithType(cli.TypeBool)).
	WithAction(Handler)

// stage is the single pipeline a set of inputs may be classified into; a run mixing
// stages (a .jack alongside a .vm, say) is rejected rather than guessed at.
type stage int

const (
	stageJack stage = iota
	stageVM
	stageASM
)

func classify(inputs []string) (stage, error) {
	seen := map[stage]bool{}
	for _, input := range inputs {
		switch filepath.Ext(input) {
		case ".jack":
			seen[stageJack] = true
		case ".vm":
			seen[stageVM] = true
		case ".asm":
			seen[stageASM] = true
		default:
			return 0, fmt.Errorf("input '%s' has an unrecognized extension (want .jack, .vm or .asm)", input)
		}
	}

	if len(seen) == 0 {
		return 0, fmt.Errorf("no input files provided")
	}
	if len(seen) > 1 {
		return 0, fmt.Errorf("refusing to compile a mix of .jack/.vm/.asm inputs in a single run")
	}

	for s := range seen {
		return s, nil
	}
	panic("unreachable")
}

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 || options["output"] == "" {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	staged, err := classify(args)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		return -1
	}

	var asmProgram asm.Program

	switch staged {
	case stageJack:
		asmProgram, err = lowerJackToASM(args, options)
	case stageVM:
		asmProgram, err = lowerVMToASM(args, options)
	case stageASM:
		asmProgram, err = parseASM(args)
	}
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		return -1
	}

	if _, enabled := options["bootstrap"]; enabled && staged != stageASM {
		asmProgram = append([]asm.Instruction{
			asm.AInstruction{Location: "261"},
			asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "D"},
			asm.AInstruction{Location: "Sys.init"},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}, asmProgram...)
	}

	output, err := os.Create(options["output"])
	if err != nil {
		fmt.Printf("ERROR: Unable to open output file: %s\n", err)
		return -1
	}
	defer output.Close()

	if _, stopAtASM := options["S"]; stopAtASM {
		codegen := asm.NewCodeGenerator(asmProgram)
		compiled, err := codegen.Generate()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
			return -1
		}
		for _, line := range compiled {
			output.Write([]byte(line + "\n"))
		}
		return 0
	}

	lowerer := asm.NewLowerer(asmProgram)
	hackProgram, table, err := lowerer.Lower()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'lowering' pass: %s\n", err)
		return -1
	}

	codegen := hack.NewCodeGenerator(hackProgram, table)
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}
	for _, line := range compiled {
		output.Write([]byte(line + "\n"))
	}

	return 0
}

// lowerJackToASM drives the jack->vm->asm path: jack.Lowerer still targets the VM IR
// rather than pkg/ssa (see DESIGN.md), so the .jack front door runs through the same
// vm.Lowerer/PeepholeLowerer used by the standalone .vm entrypoint.
func lowerJackToASM(inputs []string, options map[string]string) (asm.Program, error) {
	program := jack.Program{}

	for _, input := range inputs {
		content, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("unable to open input file '%s': %w", input, err)
		}

		parser := jack.NewParser(bytes.NewReader(content))
		class, err := parser.Parse()
		if err != nil {
			return nil, fmt.Errorf("error parsing '%s': %w", input, err)
		}

		filename, extension := path.Base(input), path.Ext(input)
		program[strings.TrimSuffix(filename, extension)] = class
	}

	if _, enabled := options["stdlib"]; enabled {
		for name, abi := range jack.StandardLibraryABI {
			def := jack.Class{Name: name, Subroutines: utils.OrderedMap[string, jack.Subroutine]{}}
			for fName, subroutine := range abi.Subroutines.Entries() {
				def.Subroutines.Set(fName, subroutine)
			}
			program[name] = def
		}
	}

	if _, enabled := options["typecheck"]; enabled {
		checker := jack.NewTypeChecker(program)
		if _, err := checker.Check(); err != nil {
			return nil, fmt.Errorf("error in 'typecheck' pass: %w", err)
		}
	}

	jackLowerer := jack.NewLowerer(program)
	vmProgram, err := jackLowerer.Lowerer()
	if err != nil {
		return nil, fmt.Errorf("error in jack 'lowering' pass: %w", err)
	}

	return lowerVMProgram(vmProgram, options)
}

// lowerVMToASM drives the standalone vm->asm path.
func lowerVMToASM(inputs []string, options map[string]string) (asm.Program, error) {
	program := vm.Program{}

	for _, input := range inputs {
		content, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("unable to open input file '%s': %w", input, err)
		}

		parser := vm.NewParser(bytes.NewReader(content))
		module, err := parser.Parse()
		if err != nil {
			return nil, fmt.Errorf("error parsing '%s': %w", input, err)
		}
		program[path.Base(input)] = module
	}

	return lowerVMProgram(program, options)
}

func lowerVMProgram(program vm.Program, options map[string]string) (asm.Program, error) {
	if _, enabled := options["optimize"]; enabled {
		lowerer := vm.NewPeepholeLowerer(program)
		return lowerer.Lower()
	}

	lowerer := vm.NewLowerer(program)
	return lowerer.Lowerer()
}

// parseASM drives the bare asm->hack path: a single .asm translation unit, already
// at the stage -S would otherwise stop at, so -S on an all-.asm input set is a no-op
// pass-through rather than an error.
func parseASM(inputs []string) (asm.Program, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("exactly one .asm input is supported, got %d", len(inputs))
	}

	content, err := os.ReadFile(inputs[0])
	if err != nil {
		return nil, fmt.Errorf("unable to open input file '%s': %w", inputs[0], err)
	}

	parser := asm.NewParser(bytes.NewReader(content))
	return parser.Parse()
}

func main() { os.Exit(HackC.Run(os.Args, os.Stdout)) }
