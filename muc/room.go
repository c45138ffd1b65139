// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"sync"

	"github.com/conclave-im/conclave/lib/jid"
)

// Room is the live session state for one multi-user chat: the
// occupant registry, the session's own occupant, the online flag and
// error classification, and the room's discovered capabilities. All
// of it is guarded by one mutex; methods take and release it
// internally and never call back out while holding it.
type Room struct {
	conv    *Conversation
	account *Account

	mu      sync.Mutex
	reg     registry
	self    Occupant
	online  bool
	err     RoomError
	info    *InfoQuery
	subject string

	// autoPush controls whether a freshly created room gets the
	// default configuration pushed automatically. It survives
	// session resets.
	autoPush bool

	pendingRename *renameFuture
	rejoinArmed   bool
}

type renameFuture struct {
	nick string
	done chan error
}

func newRoom(conv *Conversation, account *Account) *Room {
	return &Room{
		conv:     conv,
		account:  account,
		err:      RoomErrorNoResponse,
		autoPush: true,
	}
}

// Conversation returns the conversation this room session belongs to.
func (r *Room) Conversation() *Conversation { return r.conv }

// Account returns the account operating this session.
func (r *Room) Account() *Account { return r.account }

// Address returns the room's bare address.
func (r *Room) Address() jid.JID { return r.conv.Address().Bare() }

func (r *Room) policyLocked() mergePolicy {
	pol := mergePolicy{
		membersOnly:  r.info.HasFeature(FeatureMembersOnly),
		nonAnonymous: r.info.HasFeature(FeatureNonAnonymous),
		online:       r.online,
		selfReal:     r.account.Address(),
	}
	if r.online {
		pol.selfFull = r.self.FullAddress
	}
	return pol
}

// SetSelf records the session's own occupant and mirrors its rank
// into the conversation's durable attributes. It reports whether the
// rank changed against the persisted values, signalling the caller to
// persist the conversation.
func (r *Room) SetSelf(self Occupant) bool {
	r.mu.Lock()
	r.self = self
	r.mu.Unlock()
	changed := r.conv.Attribute(attrAffiliation) != string(self.Affiliation) ||
		r.conv.Attribute(attrRole) != string(self.Role)
	r.conv.SetAttribute(attrAffiliation, string(self.Affiliation))
	r.conv.SetAttribute(attrRole, string(self.Role))
	return changed
}

// Self returns a copy of the session's own occupant.
func (r *Room) Self() Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// SetOnline marks the session established and clears the error. It
// reports whether this was the offline-to-online edge; only that
// first transition should trigger post-join work.
func (r *Room) SetOnline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	was := r.online
	r.online = true
	r.err = RoomErrorNone
	return !was
}

// SetOffline tears the session down: the registry is cleared and the
// room reverts to the unjoined no-response state.
func (r *Room) SetOffline() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reg.clear()
	r.online = false
	r.err = RoomErrorNoResponse
}

// Online reports whether the session is established.
func (r *Room) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// SetError records why the session is unhealthy. Any error other than
// RoomErrorNone forces the room offline; the occupant registry is
// kept so the last known roster remains readable.
func (r *Room) SetError(err RoomError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = r.online && err == RoomErrorNone
	r.err = err
}

// Error returns the session's error classification.
func (r *Room) Error() RoomError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Participating reports whether the account is a participant rather
// than a spectator: true for public rooms, and for private rooms only
// once the account holds at least member affiliation.
func (r *Room) Participating() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.privateAndNonAnonymousLocked() {
		return true
	}
	return r.self.Affiliation.AtLeast(AffiliationMember)
}

// SetInfo replaces the room's discovery result.
func (r *Room) SetInfo(info *InfoQuery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
}

// Info returns the room's discovery result, nil before the first
// successful discovery.
func (r *Room) Info() *InfoQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

func (r *Room) hasFeature(feature string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.HasFeature(feature)
}

// MembersOnly reports whether only members may join.
func (r *Room) MembersOnly() bool { return r.hasFeature(FeatureMembersOnly) }

// Moderated reports whether visitors must be voiced to speak.
func (r *Room) Moderated() bool { return r.hasFeature(FeatureModerated) }

// NonAnonymous reports whether every occupant sees real addresses.
func (r *Room) NonAnonymous() bool { return r.hasFeature(FeatureNonAnonymous) }

func (r *Room) privateAndNonAnonymousLocked() bool {
	return r.info.HasFeature(FeatureMembersOnly) && r.info.HasFeature(FeatureNonAnonymous)
}

// PrivateAndNonAnonymous reports whether the room is a private group
// chat as opposed to a public channel.
func (r *Room) PrivateAndNonAnonymous() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.privateAndNonAnonymousLocked()
}

// OccupantIDSupport reports whether the room issues stable occupant
// identifiers.
func (r *Room) OccupantIDSupport() bool { return r.hasFeature(FeatureOccupantID) }

// StableID reports whether the room preserves message ids.
func (r *Room) StableID() bool { return r.hasFeature(FeatureStableID) }

// HasVCards reports whether the service answers vCard requests for
// its occupants.
func (r *Room) HasVCards() bool { return r.hasFeature(FeatureVCard) }

// SelfPingSupport reports whether the room implements the self-ping
// optimization.
func (r *Room) SelfPingSupport() bool { return r.hasFeature(FeatureSelfPing) }

// ArchiveSupport reports whether the room offers a message archive,
// any supported version.
func (r *Room) ArchiveSupport() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.HasFeature(FeatureMAM2) ||
		r.info.HasFeature(FeatureMAM1) ||
		r.info.HasFeature(FeatureMAM0)
}

// AllowInvites reports whether the room configuration lets occupants
// invite others.
func (r *Room) AllowInvites() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	form := r.info.Form(NamespaceRoomInfo)
	if form == nil {
		return false
	}
	f := form.Field(FieldAllowInvites)
	return f.Bool()
}

// CanInvite reports whether this session may invite someone right
// now.
func (r *Room) CanInvite() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	form := r.info.Form(NamespaceRoomInfo)
	allowed := form != nil && form.Field(FieldAllowInvites).Bool()
	hasPermission := !r.info.HasFeature(FeatureMembersOnly) ||
		r.self.Role.AtLeast(RoleModerator) || allowed
	return hasPermission && r.online
}

// CanChangeSubject reports whether this session may change the room
// subject: moderators always, others when the room allows it. The
// config-form field takes precedence over the roominfo one.
func (r *Room) CanChangeSubject() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.self.Role.AtLeast(RoleModerator) {
		return true
	}
	form := r.info.Form(NamespaceRoomInfo)
	if form == nil {
		return false
	}
	if f := form.Field(FieldChangeSubject); f != nil {
		return f.Bool()
	}
	return form.Field(FieldChangeSubjectInfo).Bool()
}

func pmPolicy(info *InfoQuery) string {
	form := info.Form(NamespaceRoomInfo)
	if form == nil {
		return ""
	}
	if f := form.Field(FieldAllowPM); f != nil {
		return f.Value()
	}
	return form.Value(FieldAllowPMRoomInfo)
}

// AllowPMRaw returns the room's private-message policy string, "" when
// the room does not announce one.
func (r *Room) AllowPMRaw() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return pmPolicy(r.info)
}

// AllowPM reports whether this session may send private messages.
// Rooms that announce no policy allow them.
func (r *Room) AllowPM() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch pmPolicy(r.info) {
	case "", "anyone":
		return true
	case "participants":
		return r.self.Role.AtLeast(RoleParticipant)
	case "moderators":
		return r.self.Role.AtLeast(RoleModerator)
	default:
		return false
	}
}

// Name returns the room's human-readable name: the configured room
// name when announced, otherwise the conference identity name.
func (r *Room) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if form := r.info.Form(NamespaceRoomInfo); form != nil {
		if name := form.Value(FieldRoomName); name != "" {
			return name
		}
		if name := form.Value(FieldRoomInfoName); name != "" {
			return name
		}
	}
	if r.info == nil {
		return ""
	}
	for _, id := range r.info.Identities {
		if id.Category == "conference" && id.Name != "" {
			return id.Name
		}
	}
	return ""
}

// UpdateOccupant merges an observed occupant into the registry. It
// reports whether the occupant's real address was previously unknown
// in this room, which is the trigger for device-key discovery.
func (r *Room) UpdateOccupant(o *Occupant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.update(o, r.policyLocked())
}

// RemoveOccupantByFullAddress removes an occupant, retaining a ghost
// where the room's policy calls for one, and returns a copy of the
// occupant as it was before removal, or nil if unknown.
func (r *Room) RemoveOccupantByFullAddress(address jid.JID) *Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.removeByFullAddress(address, r.policyLocked())
}

// OccupantByFullAddress looks an occupant up by room-scoped address.
func (r *Room) OccupantByFullAddress(address jid.JID) *Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.reg.byFullAddress(address); o != nil {
		return o.clone()
	}
	return nil
}

// OccupantByRealAddress looks an occupant up by bare account address.
func (r *Room) OccupantByRealAddress(address jid.JID) *Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.reg.byRealAddress(address); o != nil {
		return o.clone()
	}
	return nil
}

// OccupantByID looks an occupant up by stable occupant identifier.
func (r *Room) OccupantByID(id string) *Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.reg.byOccupantID(id); o != nil {
		return o.clone()
	}
	return nil
}

// OccupantByPGPKeyID looks an occupant up by the key id of their
// presence signature.
func (r *Room) OccupantByPGPKeyID(keyID uint64) *Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.reg.byPGPKeyID(keyID); o != nil {
		return o.clone()
	}
	return nil
}

// FindOrCreateOccupant returns the occupant known under the given
// real address, or a fresh one carrying both addresses. The result is
// a copy; it is not added to the registry.
func (r *Room) FindOrCreateOccupant(realAddress, fullAddress jid.JID) *Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.reg.byRealAddress(realAddress); o != nil {
		return o.clone()
	}
	return &Occupant{
		FullAddress: fullAddress,
		RealAddress: realAddress.Bare(),
		Affiliation: AffiliationNone,
		Role:        RoleNone,
	}
}

// ChangeAffiliation patches the affiliation of an absent member.
func (r *Room) ChangeAffiliation(realAddress jid.JID, affiliation Affiliation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reg.changeAffiliation(realAddress, affiliation)
}

// Snapshot returns up to limit occupants, deduplicated by real
// address with the session's own account excluded.
func (r *Room) Snapshot(limit int, includeOffline bool) []*Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.snapshot(limit, includeOffline, r.account.Address())
}

// Occupants returns the room's occupants sorted by nickname. With
// includeOffline, ghosts and visitors lacking a live role are
// included.
func (r *Room) Occupants(includeOffline bool) []*Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.list(includeOffline)
}

// Members returns every occupant with at least member affiliation and
// a known real address.
func (r *Room) Members(includeDomains bool) []*Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.members(includeDomains)
}

// Count returns the number of registry entries, ghosts included.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reg.occupants)
}

// ResetChatStates marks every occupant active again, typically after
// the session's own connectivity blip made stale states untrustworthy.
func (r *Room) ResetChatStates() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reg.resetChatStates()
}

// SetChatState records a chat-state notification for the occupant
// with the given full address.
func (r *Room) SetChatState(address jid.JID, state ChatState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.reg.byFullAddress(address); o != nil {
		o.ChatState = state
	}
}

// Subject returns the room subject as last observed.
func (r *Room) Subject() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subject
}

// SetSubject records the room subject.
func (r *Room) SetSubject(subject string) {
	r.mu.Lock()
	r.subject = subject
	r.mu.Unlock()
}

// Password returns the room password from the conversation, falling
// back to the bookmark.
func (r *Room) Password() string {
	if password := r.conv.Attribute(attrPassword); password != "" {
		return password
	}
	if bookmark := r.conv.Bookmark(); bookmark != nil {
		return bookmark.Password
	}
	return ""
}

// SetPassword stores the room password on the conversation and keeps
// the bookmark in sync.
func (r *Room) SetPassword(password string) {
	r.conv.SetAttribute(attrPassword, password)
	if bookmark := r.conv.Bookmark(); bookmark != nil {
		bookmark.Password = password
	}
}

// ProposedNick returns the nickname to request on the next join: the
// bookmarked nick, then the resource of the conversation's address,
// then the account default.
func (r *Room) ProposedNick() string {
	if bookmark := r.conv.Bookmark(); bookmark != nil {
		if nick := normalizeNick(r.account.Address(), bookmark.Nick); nick != "" {
			return nick
		}
	}
	if address := r.conv.Address(); address.IsFull() {
		return address.Resource()
	}
	return r.account.DefaultNick()
}

// ActualNick returns the nickname in effect: the established
// session's own nick when online, the proposed one otherwise.
func (r *Room) ActualNick() string {
	r.mu.Lock()
	nick := r.self.Nick()
	r.mu.Unlock()
	if nick != "" {
		return nick
	}
	return r.ProposedNick()
}

// normalizeNick validates a candidate nickname by round-tripping it
// through a resource, "" for unusable candidates.
func normalizeNick(account jid.JID, nick string) string {
	if nick == "" {
		return ""
	}
	full, err := account.WithResource(nick)
	if err != nil {
		return ""
	}
	return full.Resource()
}

// JoinAddress returns the room-scoped address for the given nickname,
// or an error when the nickname cannot form a resource.
func (r *Room) JoinAddress(nick string) (jid.JID, error) {
	return r.Address().WithResource(nick)
}

// TrueCounterpart resolves a room-scoped address to the bare account
// behind it: the session's own account for its own nick, the
// occupant's real address otherwise, zero when unknown.
func (r *Room) TrueCounterpart(counterpart jid.JID) jid.JID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counterpart == r.self.FullAddress {
		return r.account.Address()
	}
	if o := r.reg.byFullAddress(counterpart); o != nil {
		return o.RealAddress
	}
	return jid.JID{}
}

// PGPKeyIDs returns the key ids seen in presence signatures, the
// session's own key first when it has one.
func (r *Room) PGPKeyIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	if r.self.PGPKeyID != 0 {
		ids = append(ids, r.self.PGPKeyID)
	}
	for _, o := range r.reg.occupants {
		if o.PGPKeyID != 0 {
			ids = append(ids, o.PGPKeyID)
		}
	}
	return ids
}

// PGPKeysInUse reports whether any occupant signs their presence.
func (r *Room) PGPKeysInUse() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.reg.occupants {
		if o.PGPKeyID != 0 {
			return true
		}
	}
	return false
}

// EverybodyHasKeys reports whether every occupant signs their
// presence.
func (r *Room) EverybodyHasKeys() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.reg.occupants {
		if o.PGPKeyID == 0 {
			return false
		}
	}
	return true
}

// AutoPushConfiguration reports whether a room created by this
// session gets the default configuration pushed automatically.
func (r *Room) AutoPushConfiguration() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoPush
}

// SetAutoPushConfiguration opts the session in or out of automatic
// configuration pushes for freshly created rooms.
func (r *Room) SetAutoPushConfiguration(autoPush bool) {
	r.mu.Lock()
	r.autoPush = autoPush
	r.mu.Unlock()
}

// beginRename arms a one-shot future for a nickname change. The
// returned channel receives exactly one result when the reconciler
// observes the outcome. An earlier pending rename is failed first.
func (r *Room) beginRename(nick string) <-chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingRename != nil {
		r.pendingRename.done <- errRenameFailed
	}
	r.pendingRename = &renameFuture{nick: nick, done: make(chan error, 1)}
	return r.pendingRename.done
}

// resolveRename completes the pending rename future, if any.
func (r *Room) resolveRename(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingRename == nil {
		return
	}
	r.pendingRename.done <- err
	r.pendingRename = nil
}

// renamePending returns the nickname a pending rename is waiting for,
// "" when none is pending.
func (r *Room) renamePending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingRename == nil {
		return ""
	}
	return r.pendingRename.nick
}

// armRejoin claims the room's single pending rejoin slot. It reports
// false when a rejoin is already scheduled, keeping repeated removal
// events from stacking rejoins.
func (r *Room) armRejoin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejoinArmed {
		return false
	}
	r.rejoinArmed = true
	return true
}

func (r *Room) disarmRejoin() {
	r.mu.Lock()
	r.rejoinArmed = false
	r.mu.Unlock()
}
