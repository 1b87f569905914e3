// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"errors"
	"fmt"
	"sync"
)

// Key is one named HMAC secret.
type Key struct {
	ID     string
	Secret []byte
}

// KeySource resolves a kid header to a verification secret.
type KeySource interface {
	Lookup(kid string) ([]byte, bool)
}

// ErrNoActiveKey is returned when a key ring has no usable signing key.
var ErrNoActiveKey = errors.New("no active signing key")

// Keyring holds one active signing key plus any number of keys that are
// still accepted for verification. Rotation swaps the whole set at once.
type Keyring struct {
	mu     sync.RWMutex
	active Key
	keys   map[string][]byte
}

// NewKeyring builds a key ring whose signing key is activeID.
func NewKeyring(activeID string, keys ...Key) (*Keyring, error) {
	k := &Keyring{}
	if err := k.Replace(activeID, keys...); err != nil {
		return nil, err
	}
	return k, nil
}

// StaticKey returns a key ring with a single key.
func StaticKey(id string, secret []byte) *Keyring {
	return &Keyring{
		active: Key{ID: id, Secret: secret},
		keys:   map[string][]byte{id: secret},
	}
}

// Replace swaps the key set. Tokens signed by keys no longer present stop
// verifying immediately.
func (k *Keyring) Replace(activeID string, keys ...Key) error {
	set := make(map[string][]byte, len(keys))
	var active Key
	for _, key := range keys {
		if len(key.Secret) == 0 {
			return fmt.Errorf("key %q: empty secret", key.ID)
		}
		if _, dup := set[key.ID]; dup {
			return fmt.Errorf("key %q: duplicate id", key.ID)
		}
		set[key.ID] = key.Secret
		if key.ID == activeID {
			active = key
		}
	}
	if active.Secret == nil {
		return fmt.Errorf("%w: %q", ErrNoActiveKey, activeID)
	}

	k.mu.Lock()
	k.active = active
	k.keys = set
	k.mu.Unlock()
	return nil
}

// Active returns the key new tokens are signed with.
func (k *Keyring) Active() Key {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active
}

// Lookup implements KeySource. A token without kid is checked against the
// active key.
func (k *Keyring) Lookup(kid string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if kid == "" {
		return k.active.Secret, k.active.Secret != nil
	}
	s, ok := k.keys[kid]
	return s, ok
}
