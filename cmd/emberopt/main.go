// emberopt optimizes ember assembly listings from the command line. It is
// a thin driver over the optimizer package, useful for inspecting what the
// pipeline does to a compiled unit.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/embervm/ember/asm"
	"github.com/embervm/ember/optimizer"
)

func main() {
	app := &cli.App{
		Name:  "emberopt",
		Usage: "optimize ember assembly programs",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Before: func(ctx *cli.Context) error {
			level := log.LevelInfo
			if ctx.Bool("verbose") {
				level = log.LevelDebug
			}
			log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, false)))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "opt",
				Usage:     "optimize a listing and print the result",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "options", Usage: "TOML compile options file"},
					&cli.StringSliceFlag{Name: "disable", Usage: "pass name to disable (repeatable)"},
					&cli.BoolFlag{Name: "metrics", Usage: "print optimization counters"},
				},
				Action: runOpt,
			},
			{
				Name:      "dot",
				Usage:     "print the control-flow graph in Graphviz form",
				ArgsUsage: "FILE",
				Action:    runDot,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "emberopt:", err)
		os.Exit(1)
	}
}

func loadProgram(ctx *cli.Context) (*asm.Program, error) {
	if ctx.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one input file")
	}
	src, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return nil, err
	}
	return asm.ParseAssembly(string(src))
}

func loadOptions(ctx *cli.Context) (*asm.Options, error) {
	opts := &asm.Options{}
	if path := ctx.String("options"); path != "" {
		loaded, err := asm.LoadOptions(path)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}
	opts.DisabledPasses = append(opts.DisabledPasses, ctx.StringSlice("disable")...)
	return opts, nil
}

func runOpt(ctx *cli.Context) error {
	program, err := loadProgram(ctx)
	if err != nil {
		return err
	}
	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}
	if opts.DumpCFG {
		cfg, err := optimizer.BuildCFG(program)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, cfg.DOT(ctx.Args().First(), program))
	}
	before := len(program.Instructions)
	metrics, err := optimizer.Optimize(program, opts)
	if err != nil {
		return err
	}
	fmt.Print(program.String())
	log.Info("optimized", "instructions", len(program.Instructions), "before", before)
	if ctx.Bool("metrics") {
		fmt.Fprintln(os.Stderr, metrics.String())
	}
	return nil
}

func runDot(ctx *cli.Context) error {
	program, err := loadProgram(ctx)
	if err != nil {
		return err
	}
	cfg, err := optimizer.BuildCFG(program)
	if err != nil {
		return err
	}
	fmt.Println(cfg.DOT(ctx.Args().First(), program))
	return nil
}
