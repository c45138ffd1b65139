// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package muc is the session and state engine for multi-user chat
// rooms (XEP-0045) on top of an XMPP stanza transport.
//
// The package tracks, per room, who is present under which nickname,
// what long-lived standing (affiliation) and session privilege (role)
// each occupant holds, and the multi-step handshake required to join
// and stay synchronized with a room: service discovery, the
// anonymity policy gate, the presence exchange, history and member
// list retrieval, and configuration pushes for freshly created rooms.
//
// Two types carry the state. [Room] owns the occupant set of one room
// behind its UpdateOccupant and lookup methods, enforcing the identity
// merge rules that keep one record per live session and one ghost
// record per absent member; it aggregates that set with the session
// flags: the self occupant, the online bit, the current [RoomError],
// and the cached discovery snapshot the permission predicates read.
// [Manager] drives the rooms of one account: it consumes inbound
// presence stanzas (HandlePresence) and runs the join sequence and
// the admin operations against a [Transport].
//
// Stanza serialization is not this package's business. Inbound events
// arrive as already-parsed [Presence] and [IQ] values; outbound
// stanzas leave as the same structures for the transport to encode.
// Persistence, avatar caching, device-key discovery, and archive
// catch-up are collaborator interfaces with no-op defaults.
//
// Every protocol failure is classified: either it is recovered
// locally (a failed discovery fetch degrades to an empty snapshot) or
// it lands as a [RoomError] on the room, never as a panic or a
// dropped stanza. Unknown server conditions map to [RoomErrorUnknown]
// with the raw stanza logged.
package muc
