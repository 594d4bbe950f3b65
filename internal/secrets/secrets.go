// Package secrets sources the remote API credentials from the environment
// and supports atomic hot reload, so an operator can rotate the token by
// updating the environment and signalling the process instead of restarting
// it mid-run.
package secrets

import (
	"fmt"
	"os"
	"sync"
)

// Environment variables holding the remote credentials.
const (
	KeyOrgID    = "AGENTDECK_ORG_ID"
	KeyAPIToken = "AGENTDECK_API_TOKEN" //nolint:gosec // env var name, not a credential
)

// Loader retrieves secret values from a source.
type Loader func() (map[string]string, error)

// EnvLoader returns a Loader reading the given environment variables.
// Missing variables are omitted from the result.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// Credentials is one (organization, token) pair for the remote agent API.
type Credentials struct {
	OrgID    string
	APIToken string
}

// Vault holds secret values in memory and swaps them atomically on reload.
// A failed reload preserves the previous values.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once for the initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string when absent.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Credentials returns the currently loaded remote credentials. Fields the
// vault does not hold come back empty; callers fall back to static config.
func (v *Vault) Credentials() Credentials {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Credentials{
		OrgID:    v.values[KeyOrgID],
		APIToken: v.values[KeyAPIToken],
	}
}

// Reload calls the loader and swaps in the new values atomically.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}
