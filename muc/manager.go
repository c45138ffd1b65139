// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/conclave-im/conclave/lib/clock"
	"github.com/conclave-im/conclave/lib/jid"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRejoinDelay    = 5 * time.Second
)

// ManagerConfig wires a Manager to its collaborators. Transport is
// required; every other collaborator defaults to a no-op, Clock to
// the real clock, and Logger to a discarding logger.
type ManagerConfig struct {
	Account   *Account
	Transport Transport

	Store       Store
	Avatars     AvatarService
	Keys        KeyDiscovery
	Archive     Archive
	Outbox      Outbox
	Roster      Roster
	KeyResolver KeyResolver
	Notifier    Notifier
	Clock       clock.Clock
	Logger      *slog.Logger

	// LeaveBeforeJoin sends an explicit unavailable presence before
	// every join, for servers that mishandle silent rejoins.
	LeaveBeforeJoin bool

	// RequestTimeout bounds each IQ round trip during a join.
	RequestTimeout time.Duration

	// RejoinDelay is the pause before the self-ping that follows a
	// technical-reasons removal.
	RejoinDelay time.Duration
}

// Manager drives the room sessions of one account: it reconciles
// inbound presence into room state and orchestrates the join,
// configuration, and admin flows.
type Manager struct {
	account   *Account
	transport Transport

	store       Store
	avatars     AvatarService
	keys        KeyDiscovery
	archive     Archive
	outbox      Outbox
	roster      Roster
	keyResolver KeyResolver
	notifier    Notifier
	clock       clock.Clock
	logger      *slog.Logger

	leaveBeforeJoin bool
	requestTimeout  time.Duration
	rejoinDelay     time.Duration

	mu            sync.Mutex
	conversations map[jid.JID]*Conversation
}

// NewManager creates a manager from cfg, filling defaults for absent
// collaborators.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		account:         cfg.Account,
		transport:       cfg.Transport,
		store:           cfg.Store,
		avatars:         cfg.Avatars,
		keys:            cfg.Keys,
		archive:         cfg.Archive,
		outbox:          cfg.Outbox,
		roster:          cfg.Roster,
		keyResolver:     cfg.KeyResolver,
		notifier:        cfg.Notifier,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		leaveBeforeJoin: cfg.LeaveBeforeJoin,
		requestTimeout:  cfg.RequestTimeout,
		rejoinDelay:     cfg.RejoinDelay,
		conversations:   make(map[jid.JID]*Conversation),
	}
	if m.store == nil {
		m.store = nopStore{}
	}
	if m.avatars == nil {
		m.avatars = nopAvatars{}
	}
	if m.keys == nil {
		m.keys = nopKeyDiscovery{}
	}
	if m.archive == nil {
		m.archive = nopArchive{}
	}
	if m.outbox == nil {
		m.outbox = nopOutbox{}
	}
	if m.roster == nil {
		m.roster = nopRoster{}
	}
	if m.keyResolver == nil {
		m.keyResolver = nopKeyResolver{}
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.requestTimeout <= 0 {
		m.requestTimeout = defaultRequestTimeout
	}
	if m.rejoinDelay <= 0 {
		m.rejoinDelay = defaultRejoinDelay
	}
	return m
}

// Account returns the account this manager operates for.
func (m *Manager) Account() *Account { return m.account }

// Conversation returns the conversation for the given room address,
// nil when none exists.
func (m *Manager) Conversation(address jid.JID) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations[address.Bare()]
}

// FindOrCreateConversation returns the conversation for the room
// address, creating one when necessary. A resource on the address is
// kept as the proposed nickname of a fresh conversation.
func (m *Manager) FindOrCreateConversation(address jid.JID) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[address.Bare()]; ok {
		return c
	}
	c := NewConversation(address, m.account)
	m.conversations[address.Bare()] = c
	return c
}

// AddConversation registers a conversation loaded from the store.
func (m *Manager) AddConversation(c *Conversation) {
	m.mu.Lock()
	m.conversations[c.Address().Bare()] = c
	m.mu.Unlock()
}

// Conversations returns every registered conversation.
func (m *Manager) Conversations() []*Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c)
	}
	return out
}

// OccupantDisplayName returns the human-readable name for an
// occupant: the nickname when one is live, the roster display name
// for a known real address, then the real address localpart (or its
// domain for gateway entries). Empty for a record with neither a
// nickname nor a real address.
func (m *Manager) OccupantDisplayName(o *Occupant) string {
	if nick := o.Nick(); nick != "" {
		return nick
	}
	if o.RealAddress.IsZero() {
		return ""
	}
	if name := m.roster.DisplayName(o.RealAddress); name != "" {
		return name
	}
	if local := o.RealAddress.Localpart(); local != "" {
		return local
	}
	return o.RealAddress.Domain()
}

// ConversationName returns the name to show for a conversation: the
// room's advertised name, the bookmark name, a listing of the first
// few occupants, then the bare room address.
func (m *Manager) ConversationName(conv *Conversation) string {
	room := conv.Room()
	if name := room.Name(); name != "" {
		return name
	}
	if bookmark := conv.Bookmark(); bookmark != nil && bookmark.Name != "" {
		return bookmark.Name
	}
	var names []string
	for _, o := range room.Snapshot(5, true) {
		if name := m.OccupantDisplayName(o); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return conv.Address().Bare().String()
}
