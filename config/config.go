// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config loads the sensorview service configuration from YAML or
// TOML files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/iso"
	"github.com/Azure/iot-operations-sdks/go/sensorview/sensor"
	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the complete service configuration.
	Config struct {
		// Broker is the upstream MQTT broker, as host:port or tcp:// URL.
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`

		// Listen is the HTTP listen address for websockets and metrics.
		Listen string `yaml:"listen"`

		Log      Log       `yaml:"log"`
		Channels []Channel `yaml:"channels"`
	}

	// Log configures service logging.
	Log struct {
		Level string `yaml:"level"`

		// File enables rotating file output in addition to the console.
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		NoColor    bool   `yaml:"no_color"`
	}

	// Channel is the pipeline for one sensor stream: the MQTT topic it is
	// read from, the aggregator settings and the retained view history.
	// Settings not given take the defaults for the channel's kind.
	Channel struct {
		Name                string            `yaml:"name"`
		Kind                sensor.Kind       `yaml:"kind"`
		Topic               string            `yaml:"topic"`
		Strategy            throttle.Strategy `yaml:"strategy"`
		Delay               iso.Duration      `yaml:"delay"`
		Capacity            int               `yaml:"capacity"`
		Retain              int               `yaml:"retain"`
		History             int               `yaml:"history"`
		VisibilityThreshold float64           `yaml:"visibility_threshold"`
	}
)

// Default returns the configuration used when no file is given: one channel
// per sensor kind on a local broker.
func Default() *Config {
	c := &Config{
		Broker: "localhost:1883",
		Listen: ":8080",
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
	for _, kind := range sensor.Kinds() {
		c.Channels = append(c.Channels, DefaultChannel(kind))
	}
	return c
}

// DefaultChannel returns the channel defaults for a sensor kind. Chart
// channels batch periodically and keep a rolling window; the fused log
// debounces and drains fully.
func DefaultChannel(kind sensor.Kind) Channel {
	ch := Channel{
		Name:                kind.String(),
		Kind:                kind,
		Topic:               "sensors/" + kind.String(),
		Capacity:            throttle.DefaultCapacity,
		History:             120,
		VisibilityThreshold: throttle.DefaultVisibilityThreshold,
	}
	switch kind {
	case sensor.Fused:
		ch.Strategy = throttle.Debounce
		ch.Delay = iso.Duration(300 * time.Millisecond)
	default:
		ch.Strategy = throttle.PeriodicBatch
		ch.Delay = iso.Duration(50 * time.Millisecond)
		ch.Retain = 20
	}
	return ch
}

// Load reads the configuration file at path over the defaults. Files ending
// in .toml are read as TOML, anything else as YAML. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(f)
	}
	return Parse(f)
}

// ParseTOML decodes TOML over the defaults. The document is re-encoded as
// YAML so that the same field names and channel defaults apply.
func ParseTOML(r io.Reader) (*Config, error) {
	var doc map[string]any
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		return Default(), nil
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML over the defaults. A channels list replaces the default
// channels entirely.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return c, nil
}

// UnmarshalYAML decodes a channel over the defaults for its kind.
func (ch *Channel) UnmarshalYAML(node *yaml.Node) error {
	var probe struct {
		Kind sensor.Kind `yaml:"kind"`
	}
	if err := node.Decode(&probe); err != nil {
		return err
	}

	*ch = DefaultChannel(probe.Kind)

	// node.Decode does not inherit KnownFields from the outer decoder, so the
	// entry is decoded again strictly. The alias type keeps this method from
	// being re-entered.
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	type plain Channel
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode((*plain)(ch)); err != nil {
		return fmt.Errorf("channel at line %d: %w", node.Line, err)
	}
	return nil
}

// AggregatorOptions returns the aggregator settings of the channel. The
// aggregator starts hidden until a viewer connects.
func (ch *Channel) AggregatorOptions() *throttle.Options {
	return &throttle.Options{
		Capacity:            ch.Capacity,
		Delay:               time.Duration(ch.Delay),
		Strategy:            ch.Strategy,
		Retain:              ch.Retain,
		VisibilityThreshold: ch.VisibilityThreshold,
		Hidden:              true,
		Name:                ch.Name,
	}
}

// SlogLevel parses the configured log level.
func (l *Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}
