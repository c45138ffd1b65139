// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package avatar tracks occupant avatar state for the engine.
//
// The cache is keyed by a BLAKE3 keyed hash of the occupant's seed
// address (the real address when known, the room full address
// otherwise). Derived tiles are stored on disk under the hex key, so
// the cache directory never exposes raw addresses. The engine calls
// HandleVCardUpdate on every presence carrying a vCard photo hash and
// Clear when a session's identity changes.
package avatar

import (
	"encoding/hex"
	"io"
	"log/slog"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/conclave-im/conclave/lib/jid"
)

// seedDomainKey separates avatar seed hashing from any other BLAKE3
// use. Fixed constant: changing it invalidates every cached tile. The
// bytes are the ASCII domain name, zero-padded to 32 bytes.
var seedDomainKey = [32]byte{
	'c', 'o', 'n', 'c', 'l', 'a', 'v', 'e', '.', 'a', 'v', 'a', 't', 'a', 'r', '.',
	's', 'e', 'e', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// SeedKey returns the hex cache key for an avatar seed address.
func SeedKey(seed jid.JID) string {
	hasher, err := blake3.NewKeyed(seedDomainKey[:])
	if err != nil {
		panic("avatar: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(seed.String()))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Config holds the parameters for creating a cache.
type Config struct {
	// Logger receives cache events. Nil means discard.
	Logger *slog.Logger

	// OnChange fires when an address's photo hash changes, including
	// when it is cleared (empty hash). Called outside the cache lock.
	OnChange func(address jid.JID, hash string)
}

// Cache is an in-memory avatar hash cache. It implements the engine's
// AvatarService collaborator.
type Cache struct {
	logger   *slog.Logger
	onChange func(jid.JID, string)

	mu     sync.Mutex
	hashes map[string]string // seed key → vCard photo hash
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		logger:   logger,
		onChange: cfg.OnChange,
		hashes:   make(map[string]string),
	}
}

// Hash returns the cached photo hash for an address, "" and false
// when none is known.
func (c *Cache) Hash(address jid.JID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.hashes[SeedKey(address)]
	return hash, ok
}

// Clear drops the cached entry derived from the seed. Called when a
// session comes online with a possibly different identity behind the
// same address.
func (c *Cache) Clear(seed jid.JID) {
	key := SeedKey(seed)
	c.mu.Lock()
	_, existed := c.hashes[key]
	delete(c.hashes, key)
	c.mu.Unlock()
	if existed {
		c.logger.Debug("avatar cache entry cleared", "seed", seed)
	}
}

// HandleVCardUpdate records a presence-advertised photo hash. An empty
// hash means the occupant removed their avatar. Unchanged hashes are
// ignored; changes fire OnChange.
func (c *Cache) HandleVCardUpdate(address jid.JID, hash string) {
	key := SeedKey(address)
	c.mu.Lock()
	previous, existed := c.hashes[key]
	if existed && previous == hash {
		c.mu.Unlock()
		return
	}
	if hash == "" {
		if !existed {
			c.mu.Unlock()
			return
		}
		delete(c.hashes, key)
	} else {
		c.hashes[key] = hash
	}
	c.mu.Unlock()

	c.logger.Debug("avatar hash updated", "address", address)
	if c.onChange != nil {
		c.onChange(address, hash)
	}
}
