// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"strings"
	"sync"
	"time"

	"github.com/conclave-im/conclave/lib/jid"
)

// Durable conversation attributes. The attribute map outlives room
// sessions and is what the store persists.
const (
	attrPassword             = "muc_password"
	attrAffiliation          = "muc_affiliation"
	attrRole                 = "muc_role"
	attrCryptoTargets        = "crypto_targets"
	attrNonAnonymousAccepted = "muc_non_anonymous_accepted"
)

// Bookmark is the account's saved entry for a room (XEP-0402).
type Bookmark struct {
	Address  jid.JID `json:"address"`
	Name     string  `json:"name,omitempty"`
	Nick     string  `json:"nick,omitempty"`
	Password string  `json:"password,omitempty"`
	Autojoin bool    `json:"autojoin,omitempty"`
}

// Conversation is the durable identity of a group chat: its address,
// its attribute map, and the bookmark tied to it. The room session
// hanging off it is replaced wholesale on reset; the conversation
// itself survives.
type Conversation struct {
	mu          sync.Mutex
	address     jid.JID
	attrs       map[string]string
	bookmark    *Bookmark
	room        *Room
	lastMessage time.Time
	moreHistory bool
}

// NewConversation creates a conversation for the given room address
// and attaches a fresh room session for the account.
func NewConversation(address jid.JID, account *Account) *Conversation {
	c := &Conversation{
		address: address,
		attrs:   make(map[string]string),
	}
	c.room = newRoom(c, account)
	return c
}

// Address returns the conversation's address. It may carry a resource
// when the conversation was opened from a room-scoped address; Bare
// it to get the room.
func (c *Conversation) Address() jid.JID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// SetAddress replaces the conversation's address, used when a
// destroyed room points at its successor.
func (c *Conversation) SetAddress(address jid.JID) {
	c.mu.Lock()
	c.address = address
	c.mu.Unlock()
}

// Room returns the current room session.
func (c *Conversation) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// ResetRoom discards the room session and attaches a fresh one.
// The configuration auto-push preference carries over; everything
// else starts from scratch.
func (c *Conversation) ResetRoom(account *Account) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := newRoom(c, account)
	if c.room != nil {
		room.autoPush = c.room.AutoPushConfiguration()
	}
	c.room = room
	return room
}

// Attribute reads a durable attribute, "" when unset.
func (c *Conversation) Attribute(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attrs[key]
}

// SetAttribute writes a durable attribute; an empty value deletes it.
func (c *Conversation) SetAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.attrs, key)
		return
	}
	c.attrs[key] = value
}

// Attributes returns a copy of the attribute map for persistence.
func (c *Conversation) Attributes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = v
	}
	return out
}

// SetAttributes replaces the attribute map, used when loading from
// the store.
func (c *Conversation) SetAttributes(attrs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs = make(map[string]string, len(attrs))
	for k, v := range attrs {
		c.attrs[k] = v
	}
}

// Bookmark returns the bookmark bound to this conversation, nil when
// the account has none for it.
func (c *Conversation) Bookmark() *Bookmark {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bookmark
}

// SetBookmark binds a bookmark to the conversation.
func (c *Conversation) SetBookmark(bookmark *Bookmark) {
	c.mu.Lock()
	c.bookmark = bookmark
	c.mu.Unlock()
}

// CryptoTargets returns the accounts whose keys encrypted messages in
// this conversation must reach.
func (c *Conversation) CryptoTargets() []jid.JID {
	raw := c.Attribute(attrCryptoTargets)
	if raw == "" {
		return nil
	}
	var targets []jid.JID
	for _, field := range strings.Fields(raw) {
		target, err := jid.Parse(field)
		if err != nil {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

// SetCryptoTargets replaces the encryption target list.
func (c *Conversation) SetCryptoTargets(targets []jid.JID) {
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		parts = append(parts, t.String())
	}
	c.SetAttribute(attrCryptoTargets, strings.Join(parts, " "))
}

// LastMessageTime returns when the conversation last saw a message,
// zero when it never did.
func (c *Conversation) LastMessageTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessage
}

// SetLastMessageTime records the newest message timestamp; older
// values are ignored.
func (c *Conversation) SetLastMessageTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.lastMessage) {
		c.lastMessage = t
	}
}

// HasMoreHistory reports whether the server is believed to hold
// history older than the local archive.
func (c *Conversation) HasMoreHistory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moreHistory
}

// SetHasMoreHistory records whether older server-side history exists.
// A fresh join clears it before catch-up re-establishes the truth.
func (c *Conversation) SetHasMoreHistory(more bool) {
	c.mu.Lock()
	c.moreHistory = more
	c.mu.Unlock()
}

// NonAnonymousAccepted reports whether the user acknowledged joining
// a non-anonymous public room, which exposes their real address.
func (c *Conversation) NonAnonymousAccepted() bool {
	return c.Attribute(attrNonAnonymousAccepted) == "true"
}

// AcceptNonAnonymous records the acknowledgment.
func (c *Conversation) AcceptNonAnonymous() {
	c.SetAttribute(attrNonAnonymousAccepted, "true")
}
