// Package config defines the GridMesh communication configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/yndnr/gridmesh-go/internal/auth"
)

// Verify validates the configuration. Violations here are sanity
// failures discovered at startup; the process must not proceed on
// error.
func Verify(cfg *Config) error {
	if err := verifyController(&cfg.Controller); err != nil {
		return err
	}
	if err := verifyComm(&cfg.Comm); err != nil {
		return err
	}
	if err := verifyAuth(&cfg.Auth); err != nil {
		return err
	}
	if err := verifyRelay(&cfg.Relay); err != nil {
		return err
	}
	return nil
}

func verifyController(cfg *ControllerSection) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("controller.port %d out of range", cfg.Port)
	}
	if cfg.PortCount < 1 {
		return errors.New("controller.port_count must be at least 1")
	}
	if cfg.Port+cfg.PortCount-1 > 65535 {
		return fmt.Errorf("controller.port_count %d overflows the port space from %d", cfg.PortCount, cfg.Port)
	}
	if cfg.Timeout <= 0 {
		return errors.New("controller.timeout must be positive")
	}
	return nil
}

func verifyComm(cfg *CommSection) error {
	if cfg.MsgTimeout <= 0 {
		return errors.New("comm.msg_timeout must be positive")
	}
	if cfg.TreeWidth < 1 {
		return errors.New("comm.tree_width must be at least 1")
	}
	if cfg.PortRangeMin != 0 || cfg.PortRangeMax != 0 {
		if cfg.PortRangeMin < 1 || cfg.PortRangeMax > 65535 || cfg.PortRangeMin > cfg.PortRangeMax {
			return fmt.Errorf("comm.port_range %d-%d invalid", cfg.PortRangeMin, cfg.PortRangeMax)
		}
	}
	return nil
}

func verifyAuth(cfg *AuthSection) error {
	if cfg.Backend == "" {
		return errors.New("auth.backend is required")
	}
	if _, err := auth.Lookup(cfg.Backend); err != nil {
		return fmt.Errorf("auth.backend: %w", err)
	}
	if cfg.Backend != "null" && cfg.KeyFile == "" && cfg.Key == "" {
		return errors.New("auth.key_file or auth.key is required")
	}
	if cfg.TTL <= 0 {
		return errors.New("auth.ttl must be positive")
	}
	return nil
}

func verifyRelay(cfg *RelaySection) error {
	if cfg.MaxConns < 1 {
		return errors.New("relay.max_conns must be at least 1")
	}
	if cfg.RateLimit < 0 {
		return errors.New("relay.rate_limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return errors.New("relay.rate_burst must be at least 1 when rate limiting")
	}
	return nil
}
