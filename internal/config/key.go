// Package config defines the GridMesh communication configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
)

// KeyLoader returns the load function for the shared cluster key. An
// inline key takes precedence over the key file; trailing newlines in
// the file are stripped.
func (a *AuthSection) KeyLoader() func() ([]byte, error) {
	return func() ([]byte, error) {
		if a.Key != "" {
			return []byte(a.Key), nil
		}
		return readKeyFile(a.KeyFile)
	}
}

// GlobalKeyLoader returns the load function for the cross-cluster key,
// suitable for the write-once auth.GlobalKey cache.
func (a *AuthSection) GlobalKeyLoader() func() ([]byte, error) {
	return func() ([]byte, error) {
		return readKeyFile(a.GlobalKeyFile)
	}
}

func readKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	return bytes.TrimRight(raw, "\n"), nil
}
