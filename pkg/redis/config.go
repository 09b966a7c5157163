package redis

import (
	"fmt"
)

type Config struct {
	// Address of the redis server, with or without the redis:// scheme.
	Address string `yaml:"address"`
	// Prefix namespaces every key written by the checker.
	Prefix string `yaml:"prefix" default:"eip7702-checker"`
	// History is the number of past reports kept.
	History int64 `yaml:"history" default:"100"`
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Prefix == "" {
		c.Prefix = "eip7702-checker"
	}

	if c.History < 0 {
		return fmt.Errorf("redis history must not be negative, got %d", c.History)
	}

	return nil
}
