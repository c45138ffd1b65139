// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"time"

	"github.com/conclave-im/conclave/lib/jid"
	"github.com/conclave-im/conclave/lib/xdata"
)

// ChatState is a chat-state notification (XEP-0085) attached to a
// message or carried on an occupant.
type ChatState string

const (
	ChatStateActive    ChatState = "active"
	ChatStateComposing ChatState = "composing"
	ChatStatePaused    ChatState = "paused"
	ChatStateInactive  ChatState = "inactive"
	ChatStateGone      ChatState = "gone"
)

// Presence is the decoded form of a presence stanza, reduced to the
// extensions the engine acts on.
type Presence struct {
	From jid.JID `json:"from"`
	To   jid.JID `json:"to,omitempty"`

	// Type is "", "unavailable", or "error".
	Type string `json:"type,omitempty"`

	Status string `json:"status,omitempty"`

	MUCUser *MUCUser `json:"muc_user,omitempty"`

	// OccupantID is the server-assigned stable occupant identifier
	// (urn:xmpp:occupant-id:0), empty when the room does not issue
	// them.
	OccupantID string `json:"occupant_id,omitempty"`

	// VCardUpdate carries the vcard-temp:x:update photo hash.
	VCardUpdate *VCardUpdate `json:"vcard_update,omitempty"`

	// Signed is the base64 OpenPGP signature over Status
	// (jabber:x:signed).
	Signed string `json:"signed,omitempty"`

	Error *StanzaError `json:"error,omitempty"`

	// Join is set on outgoing presences that request entry into a
	// room.
	Join *JoinRequest `json:"join,omitempty"`
}

// MUCUser is the muc#user extension of a presence.
type MUCUser struct {
	Item    *MUCItem `json:"item,omitempty"`
	Status  []string `json:"status,omitempty"`
	Destroy *Destroy `json:"destroy,omitempty"`
}

// HasStatus reports whether the extension carries the given status
// code. Safe on a nil receiver.
func (u *MUCUser) HasStatus(code string) bool {
	if u == nil {
		return false
	}
	for _, s := range u.Status {
		if s == code {
			return true
		}
	}
	return false
}

// MUCItem describes an occupant inside a muc#user or muc#admin
// extension.
type MUCItem struct {
	Affiliation Affiliation `json:"affiliation,omitempty"`
	Role        Role        `json:"role,omitempty"`

	// Nick is the occupant's new nickname on a 303 rename, or the
	// nickname of a member listed by an admin query.
	Nick string `json:"nick,omitempty"`

	// JID is the occupant's real address when the room discloses
	// it.
	JID jid.JID `json:"jid,omitempty"`
}

// Destroy announces room destruction, optionally pointing at a
// replacement room.
type Destroy struct {
	Alternate jid.JID `json:"alternate,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// VCardUpdate is the vcard-temp:x:update extension.
type VCardUpdate struct {
	Photo string `json:"photo,omitempty"`
}

// JoinRequest is the muc extension on an outgoing join presence.
type JoinRequest struct {
	Password string          `json:"password,omitempty"`
	History  *HistoryRequest `json:"history,omitempty"`
}

// HistoryRequest limits the history replayed on join. A MaxStanzas of
// zero suppresses history entirely.
type HistoryRequest struct {
	MaxStanzas *int      `json:"max_stanzas,omitempty"`
	Since      time.Time `json:"since,omitempty"`
}

// IQ is the decoded form of an info/query stanza, reduced to the
// payloads the engine exchanges.
type IQ struct {
	To   jid.JID `json:"to,omitempty"`
	From jid.JID `json:"from,omitempty"`

	// Type is "get", "set", "result", or "error".
	Type string `json:"type"`

	Info  *InfoQuery  `json:"info,omitempty"`
	Admin *AdminQuery `json:"admin,omitempty"`
	Owner *OwnerQuery `json:"owner,omitempty"`

	// Ping marks an XEP-0199 ping payload.
	Ping bool `json:"ping,omitempty"`

	Error *StanzaError `json:"error,omitempty"`
}

// AdminQuery is the muc#admin payload: affiliation and role edits and
// member-list responses.
type AdminQuery struct {
	Items []MUCItem `json:"items,omitempty"`
}

// OwnerQuery is the muc#owner payload: room configuration and
// destruction.
type OwnerQuery struct {
	Configuration *xdata.Form `json:"configuration,omitempty"`
	Destroy       *Destroy    `json:"destroy,omitempty"`
}

// Identity is a disco#info identity.
type Identity struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
}

// InfoQuery is a disco#info result: the room's features, identities,
// and extension forms. The zero value answers every lookup
// negatively, which is how rooms whose discovery failed behave.
type InfoQuery struct {
	Features   []string     `json:"features,omitempty"`
	Identities []Identity   `json:"identities,omitempty"`
	Forms      []xdata.Form `json:"forms,omitempty"`
}

// HasFeature reports whether the disco result advertises the feature.
// Safe on a nil receiver.
func (q *InfoQuery) HasFeature(feature string) bool {
	if q == nil {
		return false
	}
	for _, f := range q.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Form returns the extension form with the given FORM_TYPE, or nil.
// Safe on a nil receiver.
func (q *InfoQuery) Form(formType string) *xdata.Form {
	if q == nil {
		return nil
	}
	for i := range q.Forms {
		if q.Forms[i].FormType() == formType {
			return &q.Forms[i]
		}
	}
	return nil
}

// RoomInfoValue reads a single-value field from the muc#roominfo
// extension form, "" when absent.
func (q *InfoQuery) RoomInfoValue(field string) string {
	form := q.Form(NamespaceRoomInfo)
	if form == nil {
		return ""
	}
	return form.Value(field)
}
