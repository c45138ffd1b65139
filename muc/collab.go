// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"context"
	"time"

	"github.com/conclave-im/conclave/lib/jid"
)

// Transport carries stanzas to the server. SendIQ blocks until the
// response arrives or ctx is done; an error-type response is returned
// as a *StanzaError.
type Transport interface {
	SendPresence(ctx context.Context, p *Presence) error
	SendIQ(ctx context.Context, iq *IQ) (*IQ, error)
}

// Store persists conversations and bookmarks. The manager calls it
// after durable state changes; implementations decide batching.
type Store interface {
	SaveConversation(ctx context.Context, c *Conversation) error
	SaveBookmark(ctx context.Context, b *Bookmark) error
}

// AvatarService maintains the avatar cache. HandleVCardUpdate is
// fire-and-forget; the service fetches changed avatars in the
// background. Clear invalidates cached tiles derived from the seed.
type AvatarService interface {
	Clear(seed jid.JID)
	HandleVCardUpdate(address jid.JID, hash string)
}

// KeyDiscovery prefetches encryption device keys so first messages in
// a private room need no key round trip.
type KeyDiscovery interface {
	HasCachedKeys(address jid.JID) bool
	FetchDeviceKeys(ctx context.Context, address jid.JID)
}

// Archive replays missed room history from the server's message
// archive.
type Archive interface {
	CatchUp(ctx context.Context, room jid.JID, since time.Time)
}

// Outbox releases messages queued while the room was offline.
type Outbox interface {
	SendPending(room jid.JID)
}

// Roster exposes the account's contact list.
type Roster interface {
	DisplayName(address jid.JID) string
	HasPresenceSubscription(address jid.JID) bool
}

// KeyResolver extracts the signing key id from a presence signature
// (XEP-0027). ok is false when the signature does not verify as a
// well-formed signature over status.
type KeyResolver interface {
	KeyID(status, signature string) (keyID uint64, ok bool)
}

// Notifier receives room change callbacks. Calls are made outside the
// room lock and may arrive from multiple goroutines.
type Notifier interface {
	// OccupantsChanged fires when the occupant registry changed.
	OccupantsChanged(room *Room)

	// RoomStateChanged fires when the session's online flag, error,
	// self occupant, or discovered capabilities changed.
	RoomStateChanged(room *Room)
}

type nopNotifier struct{}

func (nopNotifier) OccupantsChanged(*Room) {}
func (nopNotifier) RoomStateChanged(*Room) {}

type nopAvatars struct{}

func (nopAvatars) Clear(jid.JID)                     {}
func (nopAvatars) HandleVCardUpdate(jid.JID, string) {}

type nopKeyDiscovery struct{}

func (nopKeyDiscovery) HasCachedKeys(jid.JID) bool               { return false }
func (nopKeyDiscovery) FetchDeviceKeys(context.Context, jid.JID) {}

type nopArchive struct{}

func (nopArchive) CatchUp(context.Context, jid.JID, time.Time) {}

type nopOutbox struct{}

func (nopOutbox) SendPending(jid.JID) {}

type nopRoster struct{}

func (nopRoster) DisplayName(jid.JID) string           { return "" }
func (nopRoster) HasPresenceSubscription(jid.JID) bool { return false }

type nopKeyResolver struct{}

func (nopKeyResolver) KeyID(string, string) (uint64, bool) { return 0, false }

type nopStore struct{}

func (nopStore) SaveConversation(context.Context, *Conversation) error { return nil }
func (nopStore) SaveBookmark(context.Context, *Bookmark) error         { return nil }
