package execution

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	// Name is a human readable label for the node, used in logs and metrics.
	Name string `yaml:"name" default:"default"`
	// NodeAddress is the JSON-RPC endpoint of the execution client.
	NodeAddress string `yaml:"nodeAddress" default:"http://localhost:8547"`
	// NodeHeaders are added to every JSON-RPC request.
	NodeHeaders map[string]string `yaml:"nodeHeaders"`
	// ConnectTimeout bounds the initial chain ID / client version handshake.
	ConnectTimeout time.Duration `yaml:"connectTimeout" default:"15s"`
	// ConnectRetries is how many times the handshake is retried before giving up.
	ConnectRetries uint64 `yaml:"connectRetries" default:"0"`
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}

	if c.NodeAddress == "" {
		return errors.New("nodeAddress is required")
	}

	u, err := url.Parse(c.NodeAddress)
	if err != nil {
		return fmt.Errorf("invalid nodeAddress: %w", err)
	}

	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported nodeAddress scheme %q", u.Scheme)
	}

	if c.ConnectTimeout <= 0 {
		return errors.New("connectTimeout must be positive")
	}

	return nil
}
