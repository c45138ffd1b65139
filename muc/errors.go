// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conclave-im/conclave/lib/jid"
)

// RoomError classifies why a room session is not healthy. The zero
// value RoomErrorNone means healthy. A non-none error is mutually
// exclusive with the online flag: Room.SetError forces the room
// offline for any non-none kind.
type RoomError string

const (
	RoomErrorNone                RoomError = ""
	RoomErrorNoResponse          RoomError = "no-response"
	RoomErrorServerNotFound      RoomError = "server-not-found"
	RoomErrorRemoteServerTimeout RoomError = "remote-server-timeout"
	RoomErrorNickInUse           RoomError = "nick-in-use"
	RoomErrorPasswordRequired    RoomError = "password-required"
	RoomErrorBanned              RoomError = "banned"
	RoomErrorMembersOnly         RoomError = "members-only"
	RoomErrorResourceConstraint  RoomError = "resource-constraint"
	RoomErrorKicked              RoomError = "kicked"
	RoomErrorShutdown            RoomError = "shutdown"
	RoomErrorDestroyed           RoomError = "destroyed"
	RoomErrorInvalidNick         RoomError = "invalid-nick"
	RoomErrorTechnicalProblems   RoomError = "technical-problems"
	RoomErrorNonAnonymous        RoomError = "non-anonymous"
	RoomErrorUnknown             RoomError = "unknown"
)

// String returns the error kind's wire-stable name, "none" for the
// healthy state.
func (e RoomError) String() string {
	if e == RoomErrorNone {
		return "none"
	}
	return string(e)
}

// Standard stanza error conditions (RFC 6120 §8.3.3) the engine
// reacts to. Anything else maps to RoomErrorUnknown.
const (
	ConditionConflict             = "conflict"
	ConditionForbidden            = "forbidden"
	ConditionGone                 = "gone"
	ConditionItemNotFound         = "item-not-found"
	ConditionNotAuthorized        = "not-authorized"
	ConditionRegistrationRequired = "registration-required"
	ConditionRemoteServerNotFound = "remote-server-not-found"
	ConditionRemoteServerTimeout  = "remote-server-timeout"
	ConditionResourceConstraint   = "resource-constraint"
	ConditionServiceUnavailable   = "service-unavailable"
)

// StanzaError is a structured error stanza from the server. Callers
// use errors.As to extract it, or [IsCondition] for a single check:
//
//	if muc.IsCondition(err, muc.ConditionRemoteServerNotFound) { ... }
type StanzaError struct {
	// Condition is the defined-condition element name, e.g.
	// "item-not-found".
	Condition string `json:"condition"`

	// ConditionText is the text content of the condition element
	// itself. For "gone" this carries the room's new address as an
	// xmpp: URI.
	ConditionText string `json:"condition_text,omitempty"`

	// Text is the optional human-readable text element.
	Text string `json:"text,omitempty"`
}

func (e *StanzaError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("muc: stanza error: %s", e.Condition)
	}
	return fmt.Sprintf("muc: stanza error: %s: %s", e.Condition, e.Text)
}

// IsCondition reports whether err is a *StanzaError carrying the
// given defined condition.
func IsCondition(err error, condition string) bool {
	var stanzaErr *StanzaError
	if errors.As(err, &stanzaErr) {
		return stanzaErr.Condition == condition
	}
	return false
}

// AlternateAddress extracts the replacement room address hinted at by
// a "gone" condition. The content is an xmpp: URI or a plain address;
// returns the zero JID when no valid address is present.
func (e *StanzaError) AlternateAddress() jid.JID {
	raw := strings.TrimSpace(e.ConditionText)
	raw = strings.TrimPrefix(raw, "xmpp:")
	if query := strings.IndexByte(raw, '?'); query >= 0 {
		raw = raw[:query]
	}
	if raw == "" {
		return jid.JID{}
	}
	parsed, err := jid.Parse(raw)
	if err != nil {
		return jid.JID{}
	}
	return parsed
}

// errRenameFailed resolves a pending nickname change when the server
// rejects the new nick while the session is online.
var errRenameFailed = errors.New("muc: nickname change rejected")
