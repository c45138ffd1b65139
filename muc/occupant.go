// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"sort"
	"strings"

	"github.com/conclave-im/conclave/lib/jid"
)

// Occupant is one identity known inside a room. A live occupant has a
// full address (room@service/nick); a ghost, retained for a member of
// a members-only non-anonymous room after they disconnect, has a zero
// full address, a real address, and role none.
type Occupant struct {
	// FullAddress is the room-scoped address, zero for ghosts and
	// for members known only from affiliation lists.
	FullAddress jid.JID `json:"full_address,omitempty"`

	// RealAddress is the bare account address, zero when the room
	// hides it.
	RealAddress jid.JID `json:"real_address,omitempty"`

	Affiliation Affiliation `json:"affiliation"`
	Role        Role        `json:"role"`

	// OccupantID is the server-assigned stable identifier, empty
	// when the room does not issue them.
	OccupantID string `json:"occupant_id,omitempty"`

	ChatState  ChatState `json:"chat_state,omitempty"`
	AvatarHash string    `json:"avatar_hash,omitempty"`
	PGPKeyID   uint64    `json:"pgp_key_id,omitempty"`
}

// Nick returns the occupant's nickname, "" for ghosts.
func (o *Occupant) Nick() string {
	return o.FullAddress.Resource()
}

// IsDomain reports whether the occupant's real address is a bare
// domain. Gateways list their transports this way.
func (o *Occupant) IsDomain() bool {
	return o.RealAddress.IsDomain()
}

// Online reports whether the occupant currently has a presence in the
// room.
func (o *Occupant) Online() bool {
	return o.Role.Outranks(RoleNone)
}

func (o *Occupant) clone() *Occupant {
	c := *o
	return &c
}

// mergePolicy carries the session state the registry's merge and
// removal rules depend on. The owning room builds one per call under
// its own lock.
type mergePolicy struct {
	membersOnly  bool
	nonAnonymous bool
	online       bool
	selfFull     jid.JID
	selfReal     jid.JID
}

// registry holds the occupants of one room. It has no lock of its
// own; every method requires the owning Room's mutex to be held.
type registry struct {
	occupants []*Occupant
}

func (r *registry) byFullAddress(address jid.JID) *Occupant {
	if address.IsZero() {
		return nil
	}
	for _, o := range r.occupants {
		if o.FullAddress == address {
			return o
		}
	}
	return nil
}

func (r *registry) byRealAddress(address jid.JID) *Occupant {
	if address.IsZero() {
		return nil
	}
	bare := address.Bare()
	for _, o := range r.occupants {
		if o.RealAddress == bare {
			return o
		}
	}
	return nil
}

func (r *registry) byOccupantID(id string) *Occupant {
	if id == "" {
		return nil
	}
	for _, o := range r.occupants {
		if o.OccupantID == id {
			return o
		}
	}
	return nil
}

func (r *registry) byPGPKeyID(keyID uint64) *Occupant {
	if keyID == 0 {
		return nil
	}
	for _, o := range r.occupants {
		if o.PGPKeyID == keyID {
			return o
		}
	}
	return nil
}

func (r *registry) remove(target *Occupant) {
	for i, o := range r.occupants {
		if o == target {
			r.occupants = append(r.occupants[:i], r.occupants[i+1:]...)
			return
		}
	}
}

// update merges an observed occupant into the registry. Identity is
// resolved by full address first and real address second, so a
// presence refresh replaces the previous entry, an affiliation-list
// item never shadows a live occupant, and a live presence absorbs the
// ghost it supersedes. The merged occupant is kept only when its rank
// permits membership and it is not the session's own presence.
// Reports whether the occupant's real address was previously unknown
// in this room.
func (r *registry) update(o *Occupant, pol mergePolicy) bool {
	realKnown := false
	if o.FullAddress.IsZero() && !o.RealAddress.IsZero() {
		old := r.byRealAddress(o.RealAddress)
		realKnown = old != nil
		if old != nil {
			if !old.FullAddress.IsZero() {
				// A live occupant already claims this
				// account; the vague item has nothing to
				// add.
				return false
			}
			r.remove(old)
			o.AvatarHash = old.AvatarHash
		}
	} else if !o.RealAddress.IsZero() {
		old := r.byRealAddress(o.RealAddress)
		realKnown = old != nil
		if old != nil && (old.FullAddress.IsZero() || old.Role == RoleNone) {
			r.remove(old)
		}
	}

	if old := r.byFullAddress(o.FullAddress); old != nil {
		r.remove(old)
		if !realKnown && !old.RealAddress.IsZero() {
			o.RealAddress = old.RealAddress
			realKnown = true
		}
	}

	isSelf := pol.online && !o.FullAddress.IsZero() && o.FullAddress == pol.selfFull
	admitted := (!pol.membersOnly || o.Affiliation.AtLeast(AffiliationMember)) &&
		o.Affiliation.Outranks(AffiliationOutcast)
	if !admitted || isSelf {
		return false
	}
	r.occupants = append(r.occupants, o)
	return !o.RealAddress.IsZero() && !realKnown
}

// removeByFullAddress drops the occupant with the given full address
// and returns a copy of it as it was before removal, or nil. In a
// members-only non-anonymous room a member with a known real address
// is kept behind as a ghost so the roster survives their absence,
// unless another occupant or the session itself still covers that
// account.
func (r *registry) removeByFullAddress(address jid.JID, pol mergePolicy) *Occupant {
	o := r.byFullAddress(address)
	if o == nil {
		return nil
	}
	departed := o.clone()
	r.remove(o)

	realInRoom := false
	if !o.RealAddress.IsZero() {
		for _, other := range r.occupants {
			if other.RealAddress == o.RealAddress {
				realInRoom = true
				break
			}
		}
	}
	isSelf := !o.RealAddress.IsZero() && o.RealAddress == pol.selfReal
	if pol.membersOnly && pol.nonAnonymous &&
		o.Affiliation.AtLeast(AffiliationMember) &&
		!o.RealAddress.IsZero() && !realInRoom && !isSelf {
		o.Role = RoleNone
		o.AvatarHash = ""
		o.FullAddress = jid.JID{}
		r.occupants = append(r.occupants, o)
	}
	return departed
}

// changeAffiliation patches the affiliation of a ghost. Live
// occupants are left alone; their next presence carries the new
// affiliation anyway. A ghost demoted below member is dropped.
func (r *registry) changeAffiliation(realAddress jid.JID, affiliation Affiliation) {
	o := r.byRealAddress(realAddress)
	if o == nil || !o.FullAddress.IsZero() {
		return
	}
	r.remove(o)
	o.Affiliation = affiliation
	if affiliation.AtLeast(AffiliationMember) {
		r.occupants = append(r.occupants, o)
	}
}

// snapshot returns up to limit occupants with at most one entry per
// real address, the session's own account excluded so the subset is
// not dominated by the reader's own sessions. Occupants with hidden
// real addresses always qualify. Without includeOffline, ghosts and
// roleless entries are skipped.
func (r *registry) snapshot(limit int, includeOffline bool, selfReal jid.JID) []*Occupant {
	seen := map[jid.JID]bool{selfReal: true}
	var subset []*Occupant
	for _, o := range r.occupants {
		if !includeOffline && !o.Role.AtLeast(RoleParticipant) {
			continue
		}
		if o.RealAddress.IsZero() || (o.RealAddress.Localpart() != "" && !seen[o.RealAddress]) {
			seen[o.RealAddress] = true
			subset = append(subset, o.clone())
		}
		if len(subset) >= limit {
			break
		}
	}
	return subset
}

func (r *registry) list(includeOffline bool) []*Occupant {
	var out []*Occupant
	for _, o := range r.occupants {
		if o.IsDomain() {
			continue
		}
		if includeOffline || o.Role.AtLeast(RoleParticipant) {
			out = append(out, o.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Nick()) < strings.ToLower(out[j].Nick())
	})
	return out
}

func (r *registry) members(includeDomains bool) []*Occupant {
	var out []*Occupant
	for _, o := range r.occupants {
		if o.Affiliation.AtLeast(AffiliationMember) && !o.RealAddress.IsZero() &&
			(includeDomains || !o.IsDomain()) {
			out = append(out, o.clone())
		}
	}
	return out
}

func (r *registry) resetChatStates() {
	for _, o := range r.occupants {
		o.ChatState = ChatStateActive
	}
}

func (r *registry) clear() {
	r.occupants = nil
}
