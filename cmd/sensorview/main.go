// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command sensorview reads sensor samples from an MQTT broker and serves
// throttled, visibility-gated views of them to websocket clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/iot-operations-sdks/go/sensorview/config"
	"github.com/spf13/cobra"
)

var version = "dev"

type flags struct {
	config   string
	broker   string
	clientID string
	listen   string
	logLevel string
	logFile  string
}

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "sensorview",
		Short: "Serve throttled live sensor views over websockets",
		Long: `sensorview subscribes to accelerometer, gyroscope and fused sensor
topics on an MQTT broker, batches each stream and pushes at most one view
per interval to the websocket clients that are currently watching it.

Settings are read from the configuration file, then SENSORVIEW_* environment
variables, then flags.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}

			logger, closeLog, err := newLogger(&cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := signal.NotifyContext(
				cmd.Context(),
				syscall.SIGINT,
				syscall.SIGTERM,
			)
			defer cancel()

			return serve(ctx, cfg, logger)
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVarP(&f.config, "config", "c", "", "path to the YAML configuration file")
	fs.StringVar(&f.broker, "broker", "", "MQTT broker address (host:port or tcp:// URL)")
	fs.StringVar(&f.clientID, "client-id", "", "MQTT client identifier")
	fs.StringVar(&f.listen, "listen", "", "HTTP listen address")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.logFile, "log-file", "", "rotating log file path")

	cmd.AddCommand(newValidateCommand(&f))
	return cmd
}

func newValidateCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the resolved channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ch := range cfg.Channels {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
					ch.Name, ch.Kind, ch.Topic, ch.Strategy, ch.Delay)
			}
			return nil
		},
	}
}

// Resolve the configuration from file, environment and flags, in that order.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.ApplyEnv(os.Environ()); err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("broker") {
		cfg.Broker = f.broker
	}
	if fs.Changed("client-id") {
		cfg.ClientID = f.clientID
	}
	if fs.Changed("listen") {
		cfg.Listen = f.listen
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fs.Changed("log-file") {
		cfg.Log.File = f.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
