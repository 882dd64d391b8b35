//go:build linux

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/gomlx/zeipc/backends"
	"github.com/gomlx/zeipc/scenario"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

type deviceReport struct {
	Index int    `json:"index"`
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

type devicesReport struct {
	Backend   string         `json:"backend"`
	Devices   []deviceReport `json:"devices"`
	Ambiguous bool           `json:"ambiguous,omitempty"`
	Skipped   bool           `json:"skipped,omitempty"`
}

func devicesCmd() *cli.Command {
	var (
		backend string
		asJSON  bool
	)

	return &cli.Command{
		Name:  "devices",
		Usage: "List the devices of the backend and the device each role selects",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Usage: "backend configuration (default from ZEIPC_BACKEND)", Destination: &backend},
			&cli.BoolFlag{Name: "json", Usage: "print a JSON report to stdout", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var b backends.Backend
			var err error
			if backend != "" {
				b, err = backends.NewWithConfig(backend)
			} else {
				b, err = backends.New()
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer b.Finalize()
			devices, err := b.Devices()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			report := devicesReport{Backend: b.Description()}
			for _, d := range devices {
				report.Devices = append(report.Devices, deviceReport{Index: d.Index, UUID: d.UUID.String(), Name: d.Name})
			}
			for _, role := range []scenario.Role{scenario.RoleSender, scenario.RoleReceiver} {
				sel, err := scenario.SelectDevice(role, devices)
				if errors.Is(err, scenario.ErrNotEnoughDevices) {
					report.Skipped = true
					break
				}
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				report.Ambiguous = sel.Ambiguous
				dr := &report.Devices[sel.Device.Index]
				if dr.Role != "" {
					dr.Role += "+"
				}
				dr.Role += string(role)
			}

			if asJSON {
				out := must.M1(json.MarshalIndent(report, "", "  "))
				_, _ = fmt.Fprintln(os.Stdout, string(out))
				return nil
			}
			fmt.Printf("%s: %d devices\n", report.Backend, len(report.Devices))
			for _, d := range report.Devices {
				fmt.Printf("\t#%d\t%s\t%-10s\t%s\n", d.Index, d.UUID, d.Role, d.Name)
			}
			switch {
			case report.Skipped:
				fmt.Println("fewer than 2 devices: the scenario would be skipped")
			case report.Ambiguous:
				fmt.Println("warning: devices 0 and 1 have the same UUID, both roles use device 0")
			}
			return nil
		},
	}
}
