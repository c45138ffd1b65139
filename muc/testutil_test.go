// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/conclave-im/conclave/lib/clock"
	"github.com/conclave-im/conclave/lib/jid"
)

type fakeTransport struct {
	mu        sync.Mutex
	presences []*Presence
	iqs       []*IQ

	// iqHandler scripts the server's IQ responses. When nil every
	// IQ gets a bare result.
	iqHandler func(iq *IQ) (*IQ, error)

	presenceErr error
}

func (f *fakeTransport) SendPresence(_ context.Context, p *Presence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presences = append(f.presences, p)
	return f.presenceErr
}

func (f *fakeTransport) SendIQ(_ context.Context, iq *IQ) (*IQ, error) {
	f.mu.Lock()
	f.iqs = append(f.iqs, iq)
	handler := f.iqHandler
	f.mu.Unlock()
	if handler == nil {
		return &IQ{Type: "result"}, nil
	}
	return handler(iq)
}

func (f *fakeTransport) sentPresences() []*Presence {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Presence(nil), f.presences...)
}

func (f *fakeTransport) joinPresences() []*Presence {
	var out []*Presence
	for _, p := range f.sentPresences() {
		if p.Join != nil {
			out = append(out, p)
		}
	}
	return out
}

type fakeKeys struct {
	mu      sync.Mutex
	cached  map[jid.JID]bool
	fetched []jid.JID
}

func (f *fakeKeys) HasCachedKeys(address jid.JID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached[address]
}

func (f *fakeKeys) FetchDeviceKeys(_ context.Context, address jid.JID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, address)
}

type fakeAvatars struct {
	mu      sync.Mutex
	cleared []jid.JID
	updates map[jid.JID]string
}

func (f *fakeAvatars) Clear(seed jid.JID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, seed)
}

func (f *fakeAvatars) HandleVCardUpdate(address jid.JID, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(map[jid.JID]string)
	}
	f.updates[address] = hash
}

type fakeRoster struct {
	mu         sync.Mutex
	names      map[jid.JID]string
	subscribed map[jid.JID]bool
}

func (f *fakeRoster) DisplayName(address jid.JID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[address]
}

func (f *fakeRoster) HasPresenceSubscription(address jid.JID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[address]
}

func (f *fakeRoster) setName(address jid.JID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.names == nil {
		f.names = make(map[jid.JID]string)
	}
	f.names[address] = name
}

type testEnv struct {
	manager   *Manager
	transport *fakeTransport
	keys      *fakeKeys
	avatars   *fakeAvatars
	roster    *fakeRoster
	clock     *clock.FakeClock
	account   *Account
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		transport: &fakeTransport{},
		keys:      &fakeKeys{},
		avatars:   &fakeAvatars{},
		roster:    &fakeRoster{},
		clock:     clock.Fake(time.Unix(1700000000, 0)),
		account:   NewAccount(jid.MustParse("tester@example.org"), "Tester"),
	}
	env.manager = NewManager(ManagerConfig{
		Account:   env.account,
		Transport: env.transport,
		Keys:      env.keys,
		Avatars:   env.avatars,
		Roster:    env.roster,
		Clock:     env.clock,
	})
	return env
}

// conversation registers a room and returns its conversation.
func (e *testEnv) conversation(t *testing.T, address string) *Conversation {
	t.Helper()
	return e.manager.FindOrCreateConversation(jid.MustParse(address))
}

// goOnline drives the room online through a self-presence echo.
func (e *testEnv) goOnline(t *testing.T, conv *Conversation, nick string) {
	t.Helper()
	from := jid.MustParse(conv.Address().Bare().String() + "/" + nick)
	e.manager.HandlePresence(context.Background(), &Presence{
		From: from,
		MUCUser: &MUCUser{
			Item:   &MUCItem{Affiliation: AffiliationMember, Role: RoleParticipant},
			Status: []string{StatusSelfPresence},
		},
	})
	if !conv.Room().Online() {
		t.Fatal("room did not come online after self-presence")
	}
}

func availableFrom(address string, affiliation Affiliation, role Role, real string, statuses ...string) *Presence {
	item := &MUCItem{Affiliation: affiliation, Role: role}
	if real != "" {
		item.JID = jid.MustParse(real)
	}
	return &Presence{
		From:    jid.MustParse(address),
		MUCUser: &MUCUser{Item: item, Status: statuses},
	}
}

func unavailableFrom(address string, statuses ...string) *Presence {
	return &Presence{
		From:    jid.MustParse(address),
		Type:    "unavailable",
		MUCUser: &MUCUser{Status: statuses},
	}
}
