// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/conclave-im/conclave/lib/jid"
	"github.com/conclave-im/conclave/lib/xdata"
)

// Join runs the join sequence for the conversation's room: discovery,
// policy gate, presence exchange, archive catch-up, and member
// reconciliation. It blocks until the sequence completes or fails;
// the session's health afterwards is on the room's error field. Only
// one join per room may be in flight.
func (m *Manager) Join(ctx context.Context, conv *Conversation) error {
	address := conv.Address().Bare()
	if !m.account.beginJoin(address) {
		return fmt.Errorf("muc: join already in progress for %s", address)
	}

	if m.leaveBeforeJoin {
		m.sendUnavailable(ctx, conv.Room())
	}
	room := conv.ResetRoom(m.account)
	conv.SetHasMoreHistory(false)

	info, err := m.fetchInfo(ctx, address)
	if err != nil {
		if IsCondition(err, ConditionRemoteServerNotFound) {
			room.SetError(RoomErrorServerNotFound)
			m.account.endJoin(address, nil)
			m.notifier.RoomStateChanged(room)
			return err
		}
		// Best-effort join: a room we cannot interrogate may
		// still let us in.
		m.logger.Debug("room discovery failed, joining blind",
			"room", address, "error", err)
		info = &InfoQuery{}
	}
	m.applyInfo(ctx, conv, room, info)

	if room.NonAnonymous() && !room.MembersOnly() && !conv.NonAnonymousAccepted() {
		room.SetError(RoomErrorNonAnonymous)
		m.account.endJoin(address, nil)
		m.notifier.RoomStateChanged(room)
		return fmt.Errorf("muc: joining %s exposes the real address and was not accepted", address)
	}

	nick := room.ProposedNick()
	joinAddress, err := room.JoinAddress(nick)
	if err != nil {
		room.SetError(RoomErrorInvalidNick)
		m.account.endJoin(address, nil)
		m.notifier.RoomStateChanged(room)
		return fmt.Errorf("muc: nickname %q: %w", nick, err)
	}
	if err := m.sendJoinPresence(ctx, conv, room, joinAddress); err != nil {
		m.account.endJoin(address, nil)
		return fmt.Errorf("muc: join presence for %s: %w", address, err)
	}

	if joinAddress != conv.Address() {
		conv.SetAddress(joinAddress)
		m.persistConversation(ctx, conv)
	}

	if room.ArchiveSupport() {
		since := conv.LastMessageTime()
		go m.archive.CatchUp(context.WithoutCancel(ctx), address, since)
	}

	if room.PrivateAndNonAnonymous() {
		if err := m.FetchMembers(ctx, conv); err != nil {
			m.logger.Warn("member fetch failed",
				"room", address, "error", err)
		}
	}

	m.account.endJoin(address, func() { m.outbox.SendPending(address) })
	m.notifier.RoomStateChanged(room)
	return nil
}

// JoinViaInvite joins a room on behalf of an invitation: the invited
// room's configuration is never auto-pushed, and a bookmark with
// autojoin is ensured so the membership survives restarts.
func (m *Manager) JoinViaInvite(ctx context.Context, address jid.JID, password string) (*Conversation, error) {
	conv := m.FindOrCreateConversation(address)
	if password != "" {
		conv.Room().SetPassword(password)
	}
	conv.Room().SetAutoPushConfiguration(false)
	if err := m.Join(ctx, conv); err != nil {
		return conv, err
	}
	bookmark := conv.Bookmark()
	if bookmark == nil {
		bookmark = &Bookmark{
			Address:  address.Bare(),
			Password: password,
			Autojoin: true,
		}
		conv.SetBookmark(bookmark)
	} else if bookmark.Autojoin {
		return conv, nil
	} else {
		bookmark.Autojoin = true
	}
	if err := m.store.SaveBookmark(ctx, bookmark); err != nil {
		m.logger.Warn("bookmark save failed", "room", address, "error", err)
	}
	return conv, nil
}

// Leave tears the session down and announces the departure.
func (m *Manager) Leave(ctx context.Context, conv *Conversation) error {
	room := conv.Room()
	self := room.Self().FullAddress
	if self.IsZero() {
		var err error
		if self, err = room.JoinAddress(room.ActualNick()); err != nil {
			self = room.Address()
		}
	}
	room.SetOffline()
	err := m.transport.SendPresence(ctx, &Presence{To: self, Type: "unavailable"})
	m.notifier.RoomStateChanged(room)
	if err != nil {
		return fmt.Errorf("muc: leave %s: %w", room.Address(), err)
	}
	return nil
}

// ResendPresence re-announces the session under its current full
// address, a no-op while offline. Used when room capabilities that
// change presence semantics (occupant ids) appear mid-session.
func (m *Manager) ResendPresence(ctx context.Context, conv *Conversation) error {
	room := conv.Room()
	if !room.Online() {
		return nil
	}
	p := &Presence{To: room.Self().FullAddress}
	m.attachSignature(p)
	if err := m.transport.SendPresence(ctx, p); err != nil {
		return fmt.Errorf("muc: resend presence for %s: %w", room.Address(), err)
	}
	return nil
}

// ChangeUsername switches the session to a new nickname. Online, it
// sends presence under the new address and blocks until the server
// echoes or rejects the change; offline, it stores the nickname and
// re-runs the join sequence.
func (m *Manager) ChangeUsername(ctx context.Context, conv *Conversation, nick string) error {
	room := conv.Room()
	joinAddress, err := room.JoinAddress(nick)
	if err != nil {
		return fmt.Errorf("muc: nickname %q: %w", nick, err)
	}
	if !room.Online() {
		conv.SetAddress(joinAddress)
		m.persistConversation(ctx, conv)
		return m.Join(ctx, conv)
	}

	done := room.beginRename(nick)
	p := &Presence{To: joinAddress}
	m.attachSignature(p)
	if err := m.transport.SendPresence(ctx, p); err != nil {
		room.resolveRename(fmt.Errorf("muc: rename presence: %w", err))
	}
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	if bookmark := conv.Bookmark(); bookmark != nil && bookmark.Nick != nick {
		bookmark.Nick = nick
		if err := m.store.SaveBookmark(ctx, bookmark); err != nil {
			m.logger.Warn("bookmark save failed",
				"room", room.Address(), "error", err)
		}
	}
	return nil
}

// CheckRenameRequired renames the session when the nickname in effect
// diverged from the proposed one, typically after a bookmark edit.
func (m *Manager) CheckRenameRequired(ctx context.Context, conv *Conversation) error {
	room := conv.Room()
	if !room.Online() {
		return nil
	}
	proposed := room.ProposedNick()
	if proposed == "" || proposed == room.ActualNick() {
		return nil
	}
	return m.ChangeUsername(ctx, conv, proposed)
}

// RefreshInfo re-runs service discovery for the room and applies the
// result.
func (m *Manager) RefreshInfo(ctx context.Context, conv *Conversation) error {
	room := conv.Room()
	info, err := m.fetchInfo(ctx, room.Address())
	if err != nil {
		return err
	}
	m.applyInfo(ctx, conv, room, info)
	m.notifier.RoomStateChanged(room)
	return nil
}

func (m *Manager) fetchInfo(ctx context.Context, room jid.JID) (*InfoQuery, error) {
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	resp, err := m.transport.SendIQ(ctx, &IQ{Type: "get", To: room, Info: &InfoQuery{}})
	if err != nil {
		return nil, fmt.Errorf("muc: discovery for %s: %w", room, err)
	}
	if resp.Info == nil {
		return nil, fmt.Errorf("muc: discovery for %s: empty result", room)
	}
	return resp.Info, nil
}

// applyInfo installs a discovery result and runs its side effects:
// presence is resent when occupant-id support appears mid-session,
// a nameless bookmark adopts the discovered room name, and the
// conversation is persisted.
func (m *Manager) applyInfo(ctx context.Context, conv *Conversation, room *Room, info *InfoQuery) {
	hadOccupantID := room.OccupantIDSupport()
	room.SetInfo(info)
	if room.Online() && !hadOccupantID && room.OccupantIDSupport() {
		if err := m.ResendPresence(ctx, conv); err != nil {
			m.logger.Debug("presence resend failed",
				"room", room.Address(), "error", err)
		}
	}
	if name := room.Name(); name != "" {
		if bookmark := conv.Bookmark(); bookmark != nil && bookmark.Name == "" {
			bookmark.Name = name
			if err := m.store.SaveBookmark(ctx, bookmark); err != nil {
				m.logger.Warn("bookmark save failed",
					"room", room.Address(), "error", err)
			}
		}
	}
	m.persistConversation(ctx, conv)
}

func (m *Manager) sendJoinPresence(ctx context.Context, conv *Conversation, room *Room, to jid.JID) error {
	join := &JoinRequest{Password: room.Password()}
	if room.ArchiveSupport() {
		// Archive catch-up replaces legacy history replay.
		zero := 0
		join.History = &HistoryRequest{MaxStanzas: &zero}
	} else if last := conv.LastMessageTime(); !last.IsZero() {
		join.History = &HistoryRequest{Since: last}
	}
	p := &Presence{To: to, Join: join}
	m.attachSignature(p)
	return m.transport.SendPresence(ctx, p)
}

func (m *Manager) sendUnavailable(ctx context.Context, room *Room) {
	to, err := room.JoinAddress(room.ActualNick())
	if err != nil {
		return
	}
	if err := m.transport.SendPresence(ctx, &Presence{To: to, Type: "unavailable"}); err != nil {
		m.logger.Debug("leave presence failed",
			"room", room.Address(), "error", err)
	}
}

func (m *Manager) attachSignature(p *Presence) {
	if _, signature := m.account.PGPSignature(); signature != "" {
		p.Signed = signature
	}
}

// FetchMembers retrieves the room's full member list with one admin
// query per privileged affiliation, merges the results into the
// registry, and prunes encryption targets that are no longer members.
func (m *Manager) FetchMembers(ctx context.Context, conv *Conversation) error {
	room := conv.Room()
	address := room.Address()
	affiliations := []Affiliation{AffiliationOwner, AffiliationAdmin, AffiliationMember}
	items := make([][]MUCItem, len(affiliations))
	errs := make([]error, len(affiliations))

	var wg sync.WaitGroup
	for i, affiliation := range affiliations {
		wg.Add(1)
		go func(i int, affiliation Affiliation) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
			defer cancel()
			resp, err := m.transport.SendIQ(ctx, &IQ{
				Type:  "get",
				To:    address,
				Admin: &AdminQuery{Items: []MUCItem{{Affiliation: affiliation}}},
			})
			if err != nil {
				errs[i] = fmt.Errorf("muc: %s list for %s: %w", affiliation, address, err)
				return
			}
			if resp.Admin != nil {
				items[i] = resp.Admin.Items
			}
		}(i, affiliation)
	}
	wg.Wait()

	for _, list := range items {
		for _, item := range list {
			if item.JID.IsZero() || item.JID.Bare() == m.account.Address() {
				continue
			}
			o := &Occupant{
				RealAddress: item.JID.Bare(),
				Affiliation: ParseAffiliation(string(item.Affiliation)),
				Role:        RoleNone,
			}
			if room.UpdateOccupant(o) {
				m.maybeFetchKeys(ctx, o.RealAddress)
			}
		}
	}
	m.pruneCryptoTargets(ctx, conv, room)
	m.notifier.OccupantsChanged(room)
	return errors.Join(errs...)
}

// pruneCryptoTargets drops accepted encryption targets that no longer
// appear in the member list, so keys of removed members stop receiving
// messages. A target survives when its bare address is a member or
// when its domain is a member; gateways hold the membership for the
// accounts they bridge.
func (m *Manager) pruneCryptoTargets(ctx context.Context, conv *Conversation, room *Room) {
	targets := conv.CryptoTargets()
	if len(targets) == 0 {
		return
	}
	members := room.Members(true)
	current := make(map[jid.JID]bool, len(members))
	for _, member := range members {
		current[member.RealAddress] = true
	}
	kept := targets[:0]
	changed := false
	for _, target := range targets {
		if current[target.Bare()] || current[target.DomainJID()] {
			kept = append(kept, target)
		} else {
			changed = true
		}
	}
	if changed {
		conv.SetCryptoTargets(kept)
		m.persistConversation(ctx, conv)
	}
}

// FetchConfigurationForm retrieves the owner configuration form.
func (m *Manager) FetchConfigurationForm(ctx context.Context, conv *Conversation) (*xdata.Form, error) {
	address := conv.Room().Address()
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	resp, err := m.transport.SendIQ(ctx, &IQ{Type: "get", To: address, Owner: &OwnerQuery{}})
	if err != nil {
		return nil, fmt.Errorf("muc: configuration form for %s: %w", address, err)
	}
	if resp.Owner == nil || resp.Owner.Configuration == nil {
		return nil, fmt.Errorf("muc: configuration form for %s: missing form", address)
	}
	return resp.Owner.Configuration, nil
}

// PushConfiguration fetches the owner form, overlays options onto it
// with server-dialect rewrites applied, and submits the result. A
// whois=anyone submission pre-accepts the non-anonymous combination
// for this room.
func (m *Manager) PushConfiguration(ctx context.Context, conv *Conversation, options map[string][]string) error {
	room := conv.Room()
	form, err := m.FetchConfigurationForm(ctx, conv)
	if err != nil {
		return err
	}
	options = interoperabilityRewrites(form, options)
	if values := options[FieldWhois]; len(values) == 1 && values[0] == "anyone" {
		conv.AcceptNonAnonymous()
	}
	submit := form.Submit(options)

	address := room.Address()
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	if _, err := m.transport.SendIQ(ctx, &IQ{
		Type:  "set",
		To:    address,
		Owner: &OwnerQuery{Configuration: &submit},
	}); err != nil {
		return fmt.Errorf("muc: push configuration for %s: %w", address, err)
	}
	if err := m.RefreshInfo(ctx, conv); err != nil {
		m.logger.Debug("discovery refresh after configuration push failed",
			"room", address, "error", err)
	}
	return nil
}

// Dialect-specific form field names some servers use instead of, or
// in addition to, the standard ones.
const (
	fieldMembersByDefault     = "members_by_default"
	fieldLegacyAllowPM        = "allow_private_messages"
	fieldProsodyMemberInvites = "{http://prosody.im/protocol/muc}roomconfig_allowmemberinvites"
)

// interoperabilityRewrites mirrors standard options onto the dialect
// fields a server's form actually carries.
func interoperabilityRewrites(form *xdata.Form, options map[string][]string) map[string][]string {
	out := make(map[string][]string, len(options)+3)
	for k, v := range options {
		out[k] = v
	}
	if v, ok := single(options, FieldModeratedRoom); ok && form.Field(fieldMembersByDefault) != nil {
		// members_by_default grants voice on entry, the inverse of
		// a moderated room.
		if v == "1" || v == "true" {
			out[fieldMembersByDefault] = []string{"0"}
		} else {
			out[fieldMembersByDefault] = []string{"1"}
		}
	}
	if v, ok := single(options, FieldAllowPM); ok && form.Field(fieldLegacyAllowPM) != nil {
		if v == "anyone" {
			out[fieldLegacyAllowPM] = []string{"1"}
		} else {
			out[fieldLegacyAllowPM] = []string{"0"}
		}
	}
	if v, ok := single(options, FieldAllowInvites); ok && form.Field(fieldProsodyMemberInvites) != nil {
		out[fieldProsodyMemberInvites] = []string{v}
	}
	return out
}

func single(options map[string][]string, key string) (string, bool) {
	values := options[key]
	if len(values) != 1 {
		return "", false
	}
	return values[0], true
}

// DefaultGroupChatConfiguration is the configuration pushed onto a
// freshly created private group chat: persistent, members-only,
// unlisted, real addresses visible to members.
func DefaultGroupChatConfiguration() map[string][]string {
	return map[string][]string{
		FieldPersistentRoom:  {"1"},
		FieldMembersOnly:     {"1"},
		FieldPublicRoom:      {"0"},
		FieldWhois:           {"anyone"},
		FieldChangeSubject:   {"0"},
		FieldAllowInvites:    {"0"},
		FieldEnableArchiving: {"1"},
		FieldMAM:             {"1"},
	}
}

// DefaultChannelConfiguration is the configuration pushed onto a
// freshly created public channel: persistent, open, listed, real
// addresses visible to moderators only.
func DefaultChannelConfiguration() map[string][]string {
	return map[string][]string{
		FieldPersistentRoom:  {"1"},
		FieldMembersOnly:     {"0"},
		FieldPublicRoom:      {"1"},
		FieldWhois:           {"moderators"},
		FieldChangeSubject:   {"0"},
		FieldEnableArchiving: {"1"},
		FieldMAM:             {"1"},
	}
}

// pushDefaultConfiguration runs the one-shot configuration push that
// follows a room-created presence.
func (m *Manager) pushDefaultConfiguration(conv *Conversation) {
	ctx, cancel := context.WithTimeout(context.Background(), m.requestTimeout)
	defer cancel()
	if err := m.PushConfiguration(ctx, conv, DefaultGroupChatConfiguration()); err != nil {
		m.logger.Warn("default configuration push failed",
			"room", conv.Room().Address(), "error", err)
	}
}

// SetAffiliation grants or revokes room standing for an account. On
// confirmation the change is applied to the local ghost record; a
// present occupant's next presence carries it anyway.
func (m *Manager) SetAffiliation(ctx context.Context, conv *Conversation, target jid.JID, affiliation Affiliation) error {
	room := conv.Room()
	address := room.Address()
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	if _, err := m.transport.SendIQ(ctx, &IQ{
		Type:  "set",
		To:    address,
		Admin: &AdminQuery{Items: []MUCItem{{JID: target.Bare(), Affiliation: affiliation}}},
	}); err != nil {
		return fmt.Errorf("muc: set affiliation %s for %s in %s: %w", affiliation, target, address, err)
	}
	room.ChangeAffiliation(target, affiliation)
	m.notifier.OccupantsChanged(room)
	return nil
}

// SetRole changes the session-local privilege of a present occupant,
// addressed by nickname. The room echoes the change as presence; no
// local mutation is needed.
func (m *Manager) SetRole(ctx context.Context, conv *Conversation, nick string, role Role) error {
	address := conv.Room().Address()
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	if _, err := m.transport.SendIQ(ctx, &IQ{
		Type:  "set",
		To:    address,
		Admin: &AdminQuery{Items: []MUCItem{{Nick: nick, Role: role}}},
	}); err != nil {
		return fmt.Errorf("muc: set role %s for %q in %s: %w", role, nick, address, err)
	}
	return nil
}

// Destroy destroys the room, optionally announcing a successor room.
func (m *Manager) Destroy(ctx context.Context, conv *Conversation, alternate jid.JID) error {
	address := conv.Room().Address()
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	if _, err := m.transport.SendIQ(ctx, &IQ{
		Type:  "set",
		To:    address,
		Owner: &OwnerQuery{Destroy: &Destroy{Alternate: alternate}},
	}); err != nil {
		return fmt.Errorf("muc: destroy %s: %w", address, err)
	}
	return nil
}

// CreateGroupChat creates a private group chat under the given
// conference service with a generated address, joins it, pushes the
// group-chat default configuration carrying the name, and bookmarks
// it.
func (m *Manager) CreateGroupChat(ctx context.Context, service jid.JID, name string) (*Conversation, error) {
	address, err := jid.Parse(pronounceable(10) + "@" + service.Domain())
	if err != nil {
		return nil, fmt.Errorf("muc: derive room address on %s: %w", service.Domain(), err)
	}
	conv := m.FindOrCreateConversation(address)
	// The explicit push below carries the room name; suppress the
	// creation-triggered one.
	conv.Room().SetAutoPushConfiguration(false)
	if err := m.Join(ctx, conv); err != nil {
		return conv, err
	}
	options := DefaultGroupChatConfiguration()
	if name != "" {
		options[FieldRoomName] = []string{name}
	}
	if err := m.PushConfiguration(ctx, conv, options); err != nil {
		return conv, err
	}
	m.saveBookmarkFor(ctx, conv, name)
	return conv, nil
}

// CreateChannel creates a public channel at the given address, joins
// it, pushes the channel default configuration, and bookmarks it.
func (m *Manager) CreateChannel(ctx context.Context, address jid.JID, name string) (*Conversation, error) {
	conv := m.FindOrCreateConversation(address)
	conv.AcceptNonAnonymous()
	conv.Room().SetAutoPushConfiguration(false)
	if err := m.Join(ctx, conv); err != nil {
		return conv, err
	}
	options := DefaultChannelConfiguration()
	if name != "" {
		options[FieldRoomName] = []string{name}
	}
	if err := m.PushConfiguration(ctx, conv, options); err != nil {
		return conv, err
	}
	m.saveBookmarkFor(ctx, conv, name)
	return conv, nil
}

func (m *Manager) saveBookmarkFor(ctx context.Context, conv *Conversation, name string) {
	bookmark := conv.Bookmark()
	if bookmark == nil {
		bookmark = &Bookmark{Address: conv.Address().Bare()}
		conv.SetBookmark(bookmark)
	}
	bookmark.Autojoin = true
	if name != "" {
		bookmark.Name = name
	}
	if err := m.store.SaveBookmark(ctx, bookmark); err != nil {
		m.logger.Warn("bookmark save failed",
			"room", conv.Address().Bare(), "error", err)
	}
}

func (m *Manager) persistConversation(ctx context.Context, conv *Conversation) {
	if err := m.store.SaveConversation(ctx, conv); err != nil {
		m.logger.Warn("conversation save failed",
			"room", conv.Address().Bare(), "error", err)
	}
}

const (
	consonants = "bcdfghjklmnpqrstvwxz"
	vowels     = "aeiou"
)

// pronounceable generates a random lowercase localpart that
// alternates consonants and vowels, so generated room addresses can
// be read aloud.
func pronounceable(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		if i%2 == 0 {
			out[i] = consonants[int(b)%len(consonants)]
		} else {
			out[i] = vowels[int(b)%len(vowels)]
		}
	}
	return string(out)
}
