// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"context"
	"strings"

	"github.com/conclave-im/conclave/lib/jid"
)

// HandlePresence reconciles one inbound room presence into the state
// of the conversation it addresses. Presences for rooms the manager
// does not track, and bare-address presences, are ignored. Callers
// must not interleave calls for the same room; the inbound stanza
// stream of one connection is already sequential.
func (m *Manager) HandlePresence(ctx context.Context, p *Presence) {
	conv := m.Conversation(p.From)
	if conv == nil || !p.From.IsFull() {
		return
	}
	room := conv.Room()
	switch p.Type {
	case "":
		m.reconcileAvailable(ctx, conv, room, p)
	case "unavailable":
		m.reconcileUnavailable(ctx, conv, room, p)
	case "error":
		m.reconcileError(room, p)
	}
}

func itemToOccupant(from jid.JID, item *MUCItem) *Occupant {
	o := &Occupant{
		FullAddress: from,
		Affiliation: ParseAffiliation(string(item.Affiliation)),
		Role:        ParseRole(string(item.Role)),
	}
	if !item.JID.IsZero() {
		o.RealAddress = item.JID.Bare()
	}
	return o
}

func (m *Manager) reconcileAvailable(ctx context.Context, conv *Conversation, room *Room, p *Presence) {
	x := p.MUCUser
	if x == nil || x.Item == nil {
		return
	}
	room.SetError(RoomErrorNone)

	o := itemToOccupant(p.From, x.Item)
	if room.OccupantIDSupport() {
		o.OccupantID = p.OccupantID
	}
	if p.Signed != "" {
		if keyID, ok := m.keyResolver.KeyID(p.Status, p.Signed); ok {
			o.PGPKeyID = keyID
		}
	}
	if p.VCardUpdate != nil {
		o.AvatarHash = p.VCardUpdate.Photo
	}

	created := x.HasStatus(StatusRoomCreated)
	selfEcho := x.HasStatus(StatusSelfPresence) ||
		(created && !o.RealAddress.IsZero() && o.RealAddress == m.account.Address())

	if selfEcho {
		changed := room.SetSelf(*o)
		if room.SetOnline() {
			m.avatars.Clear(room.Address())
		}
		if changed {
			m.persistConversation(ctx, conv)
		}
		room.resolveRename(nil)
		if created && room.AutoPushConfiguration() {
			go m.pushDefaultConfiguration(conv)
		}
	} else {
		newlySeen := room.UpdateOccupant(o)
		if newlySeen && room.PrivateAndNonAnonymous() {
			m.maybeFetchKeys(ctx, o.RealAddress)
		}
	}

	if p.VCardUpdate != nil {
		m.avatars.HandleVCardUpdate(avatarSeed(o), p.VCardUpdate.Photo)
	}
	m.notifier.OccupantsChanged(room)
}

// maybeFetchKeys requests device-key discovery for a newly seen
// member unless a roster subscription or the key cache already covers
// them.
func (m *Manager) maybeFetchKeys(ctx context.Context, address jid.JID) {
	if address.IsZero() {
		return
	}
	if m.roster.HasPresenceSubscription(address) || m.keys.HasCachedKeys(address) {
		return
	}
	m.keys.FetchDeviceKeys(ctx, address)
}

func avatarSeed(o *Occupant) jid.JID {
	if !o.RealAddress.IsZero() {
		return o.RealAddress
	}
	return o.FullAddress
}

func (m *Manager) reconcileUnavailable(ctx context.Context, conv *Conversation, room *Room, p *Presence) {
	x := p.MUCUser
	selfAddress := room.Self().FullAddress
	if selfAddress.IsZero() {
		if addr, err := room.JoinAddress(room.ActualNick()); err == nil {
			selfAddress = addr
		}
	}
	fullMatches := p.From == selfAddress

	switch {
	case x != nil && x.Destroy != nil && fullMatches:
		room.SetError(RoomErrorDestroyed)
		if alt := x.Destroy.Alternate; !alt.IsZero() {
			m.logger.Info("room destroyed with alternate",
				"room", room.Address(), "alternate", alt)
		}

	case x.HasStatus(StatusShutdown) && fullMatches:
		room.SetError(RoomErrorShutdown)

	case x.HasStatus(StatusSelfPresence):
		switch {
		case x.HasStatus(StatusTechnicalReasons):
			wasOnline := room.Online()
			room.SetError(RoomErrorTechnicalProblems)
			if wasOnline {
				m.scheduleRejoin(conv, room)
			}
		case x.HasStatus(StatusKicked):
			room.SetError(RoomErrorKicked)
		case x.HasStatus(StatusBanned):
			room.SetError(RoomErrorBanned)
		case x.HasStatus(StatusRemovedAffiliation), x.HasStatus(StatusRemovedMembersOnly):
			room.SetError(RoomErrorMembersOnly)
		case x.HasStatus(StatusNickChanged):
			// The next available self-presence carries the new
			// nick and resolves the pending rename.
		default:
			room.SetError(RoomErrorUnknown)
			m.logger.Warn("self removed from room for unknown reason",
				"room", room.Address(), "status", x.Status)
		}

	default:
		if x != nil && x.Item != nil {
			// Capture the final affiliation snapshot before the
			// occupant goes; the ghost keeps it.
			m.mergeOccupantItem(ctx, room, p, x.Item)
		}
		if removed := room.RemoveOccupantByFullAddress(p.From); removed != nil {
			m.avatars.Clear(avatarSeed(removed))
		}
		m.notifier.OccupantsChanged(room)
		return
	}
	m.notifier.RoomStateChanged(room)
}

func (m *Manager) mergeOccupantItem(ctx context.Context, room *Room, p *Presence, item *MUCItem) {
	o := itemToOccupant(p.From, item)
	if room.OccupantIDSupport() {
		o.OccupantID = p.OccupantID
	}
	if room.UpdateOccupant(o) && room.PrivateAndNonAnonymous() {
		m.maybeFetchKeys(ctx, o.RealAddress)
	}
}

func (m *Manager) reconcileError(room *Room, p *Presence) {
	e := p.Error
	if e == nil {
		return
	}
	switch e.Condition {
	case ConditionConflict:
		if room.Online() {
			room.resolveRename(errRenameFailed)
		} else {
			room.SetError(RoomErrorNickInUse)
		}
	case ConditionNotAuthorized:
		room.SetError(RoomErrorPasswordRequired)
	case ConditionForbidden:
		room.SetError(RoomErrorBanned)
	case ConditionRegistrationRequired:
		room.SetError(RoomErrorMembersOnly)
	case ConditionResourceConstraint:
		room.SetError(RoomErrorResourceConstraint)
	case ConditionRemoteServerTimeout:
		room.SetError(RoomErrorRemoteServerTimeout)
	case ConditionGone:
		room.SetError(RoomErrorDestroyed)
		if alt := e.AlternateAddress(); !alt.IsZero() {
			m.logger.Info("room gone with alternate",
				"room", room.Address(), "alternate", alt)
		}
	default:
		// Some servers reject malformed nicks with only a textual
		// hint about the to attribute.
		if strings.Contains(e.Text, "attribute 'to'") {
			if room.Online() {
				room.resolveRename(errRenameFailed)
			} else {
				room.SetError(RoomErrorInvalidNick)
			}
		} else {
			room.SetError(RoomErrorUnknown)
			m.logger.Warn("unrecognized presence error",
				"room", room.Address(),
				"condition", e.Condition,
				"text", e.Text)
		}
	}
	m.notifier.RoomStateChanged(room)
}

// scheduleRejoin arms a delayed self-ping followed by a rejoin. The
// ping distinguishes a genuine removal from a server that emitted the
// removal code spuriously; if the ping succeeds the session is still
// alive and no rejoin runs. At most one rejoin is in flight per room.
func (m *Manager) scheduleRejoin(conv *Conversation, room *Room) {
	if !room.armRejoin() {
		return
	}
	m.clock.AfterFunc(m.rejoinDelay, func() {
		room.disarmRejoin()
		if room.Conversation().Room() != room {
			// A fresh join replaced the session meanwhile.
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.requestTimeout)
		defer cancel()
		self, err := room.JoinAddress(room.ActualNick())
		if err == nil && m.selfPing(ctx, self) {
			return
		}
		if err := m.Join(ctx, conv); err != nil {
			m.logger.Warn("rejoin failed",
				"room", room.Address(), "error", err)
		}
	})
}

// selfPing reports whether the room still considers the session
// joined (XEP-0410).
func (m *Manager) selfPing(ctx context.Context, self jid.JID) bool {
	resp, err := m.transport.SendIQ(ctx, &IQ{Type: "get", To: self, Ping: true})
	return err == nil && resp != nil && resp.Type == "result"
}
