// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

// Affiliation is an occupant's long-lived standing with a room. It
// persists across sessions; in a members-only room it is what grants
// re-entry. Ordering matters more than identity: every permission
// check goes through the rank methods, never through ==.
type Affiliation string

const (
	AffiliationOwner   Affiliation = "owner"
	AffiliationAdmin   Affiliation = "admin"
	AffiliationMember  Affiliation = "member"
	AffiliationNone    Affiliation = "none"
	AffiliationOutcast Affiliation = "outcast"
)

// Role is an occupant's session-local privilege level. It exists only
// while the occupant is physically in the room and resets to
// RoleNone on departure.
type Role string

const (
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleVisitor     Role = "visitor"
	RoleNone        Role = "none"
)

var affiliationRanks = map[Affiliation]int{
	AffiliationOwner:   4,
	AffiliationAdmin:   3,
	AffiliationMember:  2,
	AffiliationNone:    1,
	AffiliationOutcast: 0,
}

var roleRanks = map[Role]int{
	RoleModerator:   3,
	RoleParticipant: 2,
	RoleVisitor:     1,
	RoleNone:        0,
}

// ParseAffiliation maps a wire value to an Affiliation. Unrecognized
// or empty values degrade to AffiliationNone, matching how servers
// treat an absent affiliation attribute.
func ParseAffiliation(raw string) Affiliation {
	affiliation := Affiliation(raw)
	if _, ok := affiliationRanks[affiliation]; !ok {
		return AffiliationNone
	}
	return affiliation
}

// ParseRole maps a wire value to a Role. Unrecognized or empty values
// degrade to RoleNone.
func ParseRole(raw string) Role {
	role := Role(raw)
	if _, ok := roleRanks[role]; !ok {
		return RoleNone
	}
	return role
}

// Rank returns the affiliation's position in the total order
// owner(4) > admin(3) > member(2) > none(1) > outcast(0). Unknown
// values rank as AffiliationNone.
func (a Affiliation) Rank() int {
	if rank, ok := affiliationRanks[a]; ok {
		return rank
	}
	return affiliationRanks[AffiliationNone]
}

// Outranks reports whether a ranks strictly above other.
func (a Affiliation) Outranks(other Affiliation) bool {
	return a.Rank() > other.Rank()
}

// AtLeast reports whether a ranks at or above other.
func (a Affiliation) AtLeast(other Affiliation) bool {
	return a.Rank() >= other.Rank()
}

// Rank returns the role's position in the total order moderator(3) >
// participant(2) > visitor(1) > none(0). Unknown values rank as
// RoleNone.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return roleRanks[RoleNone]
}

// Outranks reports whether r ranks strictly above other.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}
