// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command frontdesk runs the visitor check-in kiosk and the operator tools.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/frontdesk/internal/config"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/version"
	"github.com/spf13/cobra"
)

const defaultConfigName = "config.yaml"

type rootOptions struct {
	configPath string
	out        io.Writer
	errOut     io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "frontdesk",
		Short:         "Visitor check-in kiosk",
		Long:          "frontdesk runs the visitor check-in kiosk daemon and the operator CLI for the visitor backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// Operator commands keep stdout clean; serve reconfigures after loading config.
			log.Configure(log.Config{
				Level:   "warn",
				Output:  errOut,
				Service: "frontdesk",
				Version: version.Version,
			})
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (YAML); defaults to $"+config.EnvDataDir+"/"+defaultConfigName+" when present")

	root.AddCommand(
		newServeCmd(opts),
		newDevicesCmd(opts),
		newAdminCmd(opts),
		newConfigCmd(opts),
		newHealthcheckCmd(opts),
		newVersionCmd(opts),
	)

	return root
}

// resolveConfigPath returns the explicit --config path, else the data
// directory's config.yaml when it exists, else "" (ENV and defaults only).
func (o *rootOptions) resolveConfigPath() string {
	if p := strings.TrimSpace(o.configPath); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(os.Getenv(config.EnvDataDir))
	if dataDir == "" {
		return ""
	}
	auto := filepath.Join(dataDir, defaultConfigName)
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

func (o *rootOptions) loader() *config.Loader {
	return config.NewLoader(o.resolveConfigPath(), version.Version)
}

func (o *rootOptions) loadConfig() (config.AppConfig, error) {
	cfg, err := o.loader().Load()
	if err != nil {
		return cfg, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(opts.out, "frontdesk %s\n", version.String())
			return err
		},
	}
}
