//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomlx/zeipc/scenario"
	"github.com/janpfeifer/must"
	"github.com/urfave/cli/v3"
)

// modeAll runs every allocation mode.
const modeAll = "all"

type modeReport struct {
	Mode      string  `json:"mode"`
	Passed    bool    `json:"passed"`
	Error     string  `json:"error,omitempty"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

type runReport struct {
	Backend    string       `json:"backend"`
	BufferSize int          `json:"buffer_size"`
	Seed       uint8        `json:"pattern_seed"`
	Passed     bool         `json:"passed"`
	Results    []modeReport `json:"results"`
}

func runCmd() *cli.Command {
	var (
		mode      string
		size      int
		seed      int
		backend   string
		verbosity int
		asJSON    bool
		timeout   time.Duration
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run the scenario: a sender process shares device memory with a receiver process on another device",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Usage: "allocation mode: device, reserved or all", Value: modeAll, Destination: &mode},
			&cli.IntFlag{Name: "size", Usage: "number of bytes shared and verified (default from ZEIPC_BUFFER_SIZE, or 4096)", Destination: &size},
			&cli.IntFlag{Name: "seed", Usage: "data pattern seed (default from ZEIPC_PATTERN_SEED, or 1)", Destination: &seed},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       `backend configuration "<name>:<config>", e.g. "levelzero" or "sim:devices=2,shuffle" (default from ZEIPC_BACKEND)`,
				Destination: &backend,
			},
			&cli.IntFlag{Name: "verbosity", Aliases: []string{"v"}, Usage: "klog verbosity, also used by the child processes", Destination: &verbosity},
			&cli.BoolFlag{Name: "json", Usage: "print a JSON report to stdout", Destination: &asJSON},
			&cli.DurationFlag{Name: "timeout", Usage: "kill the scenario after this long (0 = no limit)", Destination: &timeout},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := scenario.LoadConfig()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if cmd.IsSet("size") {
				cfg.BufferSize = size
			}
			if cmd.IsSet("seed") {
				if seed < 1 || seed > 255 {
					return cli.Exit(fmt.Sprintf("error: --seed must be between 1 and 255, got %d", seed), 1)
				}
				cfg.PatternSeed = uint8(seed)
			}
			if backend != "" {
				cfg.Backend = backend
			}
			if cmd.IsSet("verbosity") {
				cfg.Verbosity = verbosity
			}
			if err = scenario.SetVerbosity(cfg.Verbosity); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var results []scenario.Result
			if mode == modeAll {
				results, err = scenario.RunAll(ctx, cfg)
			} else {
				cfg.AllocMode = scenario.AllocMode(mode)
				if err = cfg.Validate(); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				start := time.Now()
				err = scenario.Run(ctx, cfg)
				results = []scenario.Result{{Mode: cfg.AllocMode, Err: err, Elapsed: time.Since(start)}}
			}

			report := runReport{Backend: cfg.Backend, BufferSize: cfg.BufferSize, Seed: cfg.PatternSeed, Passed: err == nil}
			for _, result := range results {
				r := modeReport{
					Mode:      string(result.Mode),
					Passed:    result.Passed(),
					ElapsedMs: float64(result.Elapsed.Microseconds()) / 1000,
				}
				if result.Err != nil {
					r.Error = result.Err.Error()
				}
				report.Results = append(report.Results, r)
			}
			if asJSON {
				out := must.M1(json.MarshalIndent(report, "", "  "))
				_, _ = fmt.Fprintln(os.Stdout, string(out))
			} else {
				printReport(report)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("FAILED: %v", err), 1)
			}
			return nil
		},
	}
}

func printReport(report runReport) {
	for _, r := range report.Results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Printf("%s\t%-8s\t%8.1fms", status, r.Mode, r.ElapsedMs)
		if r.Error != "" {
			fmt.Printf("\t%s", r.Error)
		}
		fmt.Println()
	}
}
