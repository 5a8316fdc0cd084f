package main

import (
	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"
)

// probeConfig is the optional YAML overlay loaded via --config; every field
// has a zero-value default so running with no config file at all is fine.
type probeConfig struct {
	LogLevel  string `config:"logLevel"`
	Mode      string `config:"mode"` // "request" or "response", default for parse/roundtrip
	PushGateway string `config:"pushGateway"`
}

func defaultConfig() probeConfig {
	return probeConfig{LogLevel: "info", Mode: "request"}
}

// loadConfig reads path as YAML and unpacks it over the defaults. An empty
// path is a no-op.
func loadConfig(path string) (probeConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	conf, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return cfg, err
	}
	if err := conf.Unpack(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
