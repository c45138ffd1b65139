// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"sync"

	"github.com/conclave-im/conclave/lib/jid"
)

// Account is the local account a manager operates rooms for. Its
// join-in-progress set keeps a room's join sequence from running
// twice concurrently and lets the reconciler distinguish a join it is
// completing from stray self-presence.
type Account struct {
	address     jid.JID
	displayName string

	// pgpKeyID and pgpSignature are set when the account signs its
	// presence status (XEP-0027).
	pgpKeyID     uint64
	pgpSignature string

	mu              sync.Mutex
	inProgressJoins map[jid.JID]bool
}

// NewAccount creates an account for the given bare address.
func NewAccount(address jid.JID, displayName string) *Account {
	return &Account{
		address:         address.Bare(),
		displayName:     displayName,
		inProgressJoins: make(map[jid.JID]bool),
	}
}

// Address returns the account's bare address.
func (a *Account) Address() jid.JID { return a.address }

// DisplayName returns the account's display name, "" when unset.
func (a *Account) DisplayName() string { return a.displayName }

// DefaultNick returns the nickname used when neither bookmark nor
// conversation address proposes one: the display name when it forms a
// valid resource, the address localpart otherwise.
func (a *Account) DefaultNick() string {
	if nick := normalizeNick(a.address, a.displayName); nick != "" {
		return nick
	}
	if local := a.address.Localpart(); local != "" {
		return local
	}
	return a.address.Domain()
}

// SetPGPSignature installs the signature the account attaches to its
// presence, together with the id of the signing key.
func (a *Account) SetPGPSignature(keyID uint64, signature string) {
	a.mu.Lock()
	a.pgpKeyID = keyID
	a.pgpSignature = signature
	a.mu.Unlock()
}

// PGPSignature returns the account's presence signature and key id.
func (a *Account) PGPSignature() (uint64, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pgpKeyID, a.pgpSignature
}

// JoinInProgress reports whether a join sequence is currently running
// for the room.
func (a *Account) JoinInProgress(room jid.JID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inProgressJoins[room.Bare()]
}

// beginJoin marks a join sequence as running. It reports false when
// one is already in flight, in which case the caller must back off.
func (a *Account) beginJoin(room jid.JID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	room = room.Bare()
	if a.inProgressJoins[room] {
		return false
	}
	a.inProgressJoins[room] = true
	return true
}

// endJoin clears the in-progress mark. The flush callback runs while
// the mark is still logically part of the join, so presence queued by
// it is processed before any later join attempt starts.
func (a *Account) endJoin(room jid.JID, flush func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if flush != nil {
		flush()
	}
	delete(a.inProgressJoins, room.Bare())
}
