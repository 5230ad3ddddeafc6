package main

import (
	"os"

	"github.com/BurntSushi/toml"
)

type config struct {
	Title           string
	Backends        string
	Family          string
	Socktype        string
	Protocol        string
	DefaultLoopback bool `toml:"default-loopback"`
	SRVLookup       bool `toml:"srv-lookup"`
	ClampTTL        int  `toml:"clamp-ttl"`
	RequestTimeout  int  `toml:"request-timeout"`
	ResultTimeout   int  `toml:"result-timeout"`
	Services        string
}

func loadConfig(name string) (config, error) {
	c := config{ClampTTL: -1}
	if name == "" {
		return c, nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return c, err
	}
	err = toml.Unmarshal(b, &c)
	return c, err
}
