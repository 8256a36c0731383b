// Package secrets provides a thread-safe secret store with hot reload.
// Services hold secret references (ids), never plaintext; the Vault is the
// only place a reference becomes a value.
package secrets

import (
	"fmt"
	"sync"
)

// Loader retrieves secrets from a source (env vars, file, remote vault, etc.).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for ref, or an empty string if not found.
func (v *Vault) Get(ref string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[ref]
}

// Resolve returns the secret for ref, or an error naming the missing
// reference. Callers on precondition paths use this form.
func (v *Vault) Resolve(ref string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[ref]
	if !ok || val == "" {
		return "", fmt.Errorf("secret %q not found", ref)
	}
	return val, nil
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
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
