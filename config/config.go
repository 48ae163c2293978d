// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the daemon's YAML configuration file.
package config

import (
	"net/url"
	"os"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v3"
)

// DefaultListenAddr is used when the config file does not name one.
const DefaultListenAddr = "127.0.0.1:8098"

// Config holds the daemon configuration.
type Config struct {
	// APIURL is the base URL of the replication-config API.
	APIURL string

	// ListenAddr is the address the UI API is served on.
	ListenAddr string

	// LogConfig is an optional loggo configuration string.
	LogConfig string
}

var configChecker = schema.FieldMap(
	schema.Fields{
		"api-url":     schema.NonEmptyString("api-url"),
		"listen-addr": schema.NonEmptyString("listen-addr"),
		"log-config":  schema.String(),
	},
	schema.Defaults{
		"listen-addr": DefaultListenAddr,
		"log-config":  schema.Omit,
	},
)

// Read loads and parses the config file at path.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotatef(err, "reading config %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Annotatef(err, "parsing config %q", path)
	}
	return cfg, nil
}

// Parse parses YAML config data.
func Parse(data []byte) (Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, errors.Trace(err)
	}
	coerced, err := configChecker.Coerce(raw, nil)
	if err != nil {
		return Config{}, errors.Trace(err)
	}
	fields := coerced.(map[string]interface{})

	cfg := Config{
		APIURL:     fields["api-url"].(string),
		ListenAddr: fields["listen-addr"].(string),
	}
	if value, ok := fields["log-config"]; ok {
		cfg.LogConfig = value.(string)
	}

	parsed, err := url.Parse(cfg.APIURL)
	if err != nil {
		return Config{}, errors.Annotatef(err, "parsing api-url %q", cfg.APIURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Config{}, errors.NotValidf("api-url scheme %q", parsed.Scheme)
	}
	return cfg, nil
}
