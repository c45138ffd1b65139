// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package jid provides a strongly typed, immutable XMPP address value.
//
// A JID has up to three parts: localpart@domain/resource. A bare JID
// omits the resource; a domain JID omits the localpart as well. In
// multi-user chat a room's address is a bare JID whose localpart names
// the room, and an occupant's full address is the room JID with the
// occupant's nickname as the resource.
//
// All constructors validate their input and return errors for invalid
// addresses. Once constructed, a JID is immutable. JIDs are comparable
// with ==; the zero value is not a valid address (use IsZero to test).
//
// JSON marshaling uses the canonical string form via
// encoding.TextMarshaler.
package jid
