// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

// Status codes carried in muc#user presence extensions (XEP-0045
// §17.2). They arrive as strings on the wire and stay strings here.
const (
	// StatusNonAnonymous marks the room as exposing real addresses
	// to everyone.
	StatusNonAnonymous = "100"

	// StatusSelfPresence marks a presence as referring to the
	// receiving occupant itself.
	StatusSelfPresence = "110"

	// StatusRoomCreated is sent with the first self-presence when
	// joining creates a locked room awaiting configuration.
	StatusRoomCreated = "201"

	// StatusBanned accompanies an unavailable presence caused by an
	// outcast affiliation change.
	StatusBanned = "301"

	// StatusNickChanged accompanies the unavailable presence of the
	// old nickname during a rename; the item's nick attribute names
	// the new one.
	StatusNickChanged = "303"

	// StatusKicked accompanies an unavailable presence caused by a
	// role change to none.
	StatusKicked = "307"

	// StatusRemovedAffiliation is sent when an affiliation change
	// removes the occupant from a members-only room.
	StatusRemovedAffiliation = "321"

	// StatusRemovedMembersOnly is sent when the room becomes
	// members-only and the occupant is not a member.
	StatusRemovedMembersOnly = "322"

	// StatusShutdown is sent when the MUC service is shutting down.
	StatusShutdown = "332"

	// StatusTechnicalReasons is sent when the occupant is removed
	// for a technical problem; clients are expected to rejoin.
	StatusTechnicalReasons = "333"
)

// Disco features and room-info namespaces the engine inspects.
const (
	FeatureMembersOnly  = "muc_membersonly"
	FeatureModerated    = "muc_moderated"
	FeatureNonAnonymous = "muc_nonanonymous"

	FeatureOccupantID = "urn:xmpp:occupant-id:0"
	FeatureStableID   = "http://jabber.org/protocol/muc#stable_id"
	FeatureVCard      = "vcard-temp"

	FeatureMAM2      = "urn:xmpp:mam:2"
	FeatureMAM1      = "urn:xmpp:mam:1"
	FeatureMAM0      = "urn:xmpp:mam:0"
	FeatureSelfPing  = "http://jabber.org/protocol/muc#self-ping-optimization"
	NamespaceMUC     = "http://jabber.org/protocol/muc"
	NamespaceMUCUser = "http://jabber.org/protocol/muc#user"

	NamespaceRoomInfo   = "http://jabber.org/protocol/muc#roominfo"
	NamespaceRoomConfig = "http://jabber.org/protocol/muc#roomconfig"
)

// Room configuration and room-info form fields.
const (
	FieldMembersOnly       = "muc#roomconfig_membersonly"
	FieldModeratedRoom     = "muc#roomconfig_moderatedroom"
	FieldPersistentRoom    = "muc#roomconfig_persistentroom"
	FieldPublicRoom        = "muc#roomconfig_publicroom"
	FieldWhois             = "muc#roomconfig_whois"
	FieldEnableArchiving   = "muc#roomconfig_enablearchiving"
	FieldMAM               = "mam"
	FieldAllowInvites      = "muc#roomconfig_allowinvites"
	FieldAllowPM           = "muc#roomconfig_allowpm"
	FieldChangeSubject     = "muc#roomconfig_changesubject"
	FieldRoomName          = "muc#roomconfig_roomname"
	FieldRoomInfoName      = "muc#roominfo_roomname"
	FieldOccupants         = "muc#roominfo_occupants"
	FieldAllowPMRoomInfo   = "muc#roominfo_allowpm"
	FieldAllowInvitesInfo  = "muc#roominfo_allowinvites"
	FieldChangeSubjectInfo = "muc#roominfo_changesubject"
)
