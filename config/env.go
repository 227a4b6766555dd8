// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENSORVIEW_"

type envField struct {
	name string
	set  func(*Config, string) error
}

// Top-level fields that may be overridden from the environment. The variable
// name is the prefix followed by the screaming-snake-case field name, e.g.
// SENSORVIEW_LOG_LEVEL.
var envFields = []envField{
	{"Broker", func(c *Config, v string) error { c.Broker = v; return nil }},
	{"ClientID", func(c *Config, v string) error { c.ClientID = v; return nil }},
	{"Listen", func(c *Config, v string) error { c.Listen = v; return nil }},
	{"LogLevel", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LogFile", func(c *Config, v string) error { c.Log.File = v; return nil }},
	{"LogNoColor", func(c *Config, v string) error {
		noColor, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Log.NoColor = noColor
		return nil
	}},
}

// EnvName returns the environment variable that overrides a field.
func EnvName(field string) string {
	return EnvPrefix + strcase.ToScreamingSnake(field)
}

// ApplyEnv overrides fields from environment entries of the form KEY=value,
// as returned by os.Environ.
func (c *Config) ApplyEnv(environ []string) error {
	setters := make(map[string]envField, len(envFields))
	for _, f := range envFields {
		setters[EnvName(f.name)] = f
	}

	for _, env := range environ {
		key, val, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		f, ok := setters[key]
		if !ok {
			continue
		}
		if err := f.set(c, val); err != nil {
			return &Error{
				Message: "could not parse " + key,
				Field:   f.name,
				Value:   val,
				Wrapped: err,
			}
		}
	}
	return nil
}
