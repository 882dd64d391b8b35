//go:build linux

package main

import (
	"context"
	"os"
	"testing"

	"github.com/gomlx/zeipc/scenario"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestMain(m *testing.M) {
	scenario.RunIfChild()
	os.Exit(m.Run())
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:           "zeipc",
		Commands:       []*cli.Command{runCmd(), devicesCmd()},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func TestRunCommand(t *testing.T) {
	err := newApp().Run(context.Background(), []string{"zeipc", "run", "--backend=sim:shuffle", "--size=1000", "--json"})
	require.NoError(t, err)
	err = newApp().Run(context.Background(), []string{"zeipc", "run", "--backend=sim", "--mode=reserved", "-v=1"})
	require.NoError(t, err)

	err = newApp().Run(context.Background(), []string{"zeipc", "run", "--backend=sim", "--seed=0"})
	require.ErrorContains(t, err, "--seed must be between 1 and 255")
}

func TestDevicesCommand(t *testing.T) {
	for _, backend := range []string{"sim", "sim:devices=1", "sim:uuids=00000000-0000-0000-0000-000000000001/00000000-0000-0000-0000-000000000001"} {
		require.NoError(t, newApp().Run(context.Background(), []string{"zeipc", "devices", "--backend=" + backend}))
		require.NoError(t, newApp().Run(context.Background(), []string{"zeipc", "devices", "--json", "--backend=" + backend}))
	}
}
