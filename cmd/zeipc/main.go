//go:build linux

// zeipc runs the multi-device IPC memory sharing scenario against a Level Zero driver (or the simulated one),
// and reports the result through its exit code: 0 if it passed (or was skipped), 1 if it failed.
//
//	zeipc run --mode=all -v=1
//	zeipc devices --backend=sim:devices=2,shuffle
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/gomlx/zeipc/backends/levelzero"
	_ "github.com/gomlx/zeipc/backends/simulated"
	"github.com/gomlx/zeipc/scenario"
	"github.com/urfave/cli/v3"
)

func main() {
	// Sender and receiver processes are this same binary.
	scenario.RunIfChild()

	app := &cli.Command{
		Name:  "zeipc",
		Usage: "Level Zero multi-device IPC memory sharing conformance scenario",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			devicesCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
