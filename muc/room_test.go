// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package muc

import (
	"testing"

	"github.com/conclave-im/conclave/lib/jid"
	"github.com/conclave-im/conclave/lib/xdata"
)

func roomInfoForm(fields map[string]string) xdata.Form {
	form := xdata.Form{Type: "result"}
	form.Fields = append(form.Fields, xdata.Field{
		Var:    "FORM_TYPE",
		Values: []string{NamespaceRoomInfo},
	})
	for name, value := range fields {
		form.Fields = append(form.Fields, xdata.Field{Var: name, Values: []string{value}})
	}
	return form
}

func TestSetOnlineEdge(t *testing.T) {
	env := newTestEnv(t)
	room := env.conversation(t, "room@muc.example").Room()
	if !room.SetOnline() {
		t.Error("first SetOnline should report the edge")
	}
	if room.SetOnline() {
		t.Error("second SetOnline should not report the edge")
	}
	room.SetOffline()
	if room.Online() {
		t.Error("room online after SetOffline")
	}
	if room.Error() != RoomErrorNoResponse {
		t.Errorf("error after SetOffline = %s, want no-response", room.Error())
	}
	if !room.SetOnline() {
		t.Error("SetOnline after SetOffline should report the edge again")
	}
}

func TestSetErrorForcesOffline(t *testing.T) {
	env := newTestEnv(t)
	room := env.conversation(t, "room@muc.example").Room()
	room.SetOnline()
	room.UpdateOccupant(&Occupant{
		FullAddress: jid.MustParse("room@muc.example/bob"),
		Affiliation: AffiliationNone,
		Role:        RoleParticipant,
	})

	room.SetError(RoomErrorKicked)
	if room.Online() {
		t.Error("room still online after SetError")
	}
	if room.Count() != 1 {
		t.Error("SetError cleared the registry; only SetOffline should")
	}

	// Clearing the error must not resurrect the online flag.
	room.SetError(RoomErrorNone)
	if room.Online() {
		t.Error("SetError(none) brought the room online")
	}
}

func TestSetSelfReportsRankChange(t *testing.T) {
	env := newTestEnv(t)
	room := env.conversation(t, "room@muc.example").Room()
	self := Occupant{
		FullAddress: jid.MustParse("room@muc.example/me"),
		Affiliation: AffiliationMember,
		Role:        RoleParticipant,
	}
	if !room.SetSelf(self) {
		t.Error("first SetSelf should report a change")
	}
	if room.SetSelf(self) {
		t.Error("identical SetSelf should not report a change")
	}
	self.Role = RoleModerator
	if !room.SetSelf(self) {
		t.Error("role change not reported")
	}
}

func TestAllowPMPolicy(t *testing.T) {
	cases := []struct {
		name   string
		policy string
		role   Role
		want   bool
	}{
		{"absent defaults permissive", "", RoleVisitor, true},
		{"anyone", "anyone", RoleVisitor, true},
		{"participants as visitor", "participants", RoleVisitor, false},
		{"participants as participant", "participants", RoleParticipant, true},
		{"moderators as participant", "moderators", RoleParticipant, false},
		{"moderators as moderator", "moderators", RoleModerator, true},
		{"none", "none", RoleModerator, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			room := env.conversation(t, "room@muc.example").Room()
			info := &InfoQuery{}
			if tc.policy != "" {
				info.Forms = []xdata.Form{roomInfoForm(map[string]string{
					FieldAllowPM: tc.policy,
				})}
			}
			room.SetInfo(info)
			room.SetSelf(Occupant{
				FullAddress: jid.MustParse("room@muc.example/me"),
				Role:        tc.role,
			})
			if got := room.AllowPM(); got != tc.want {
				t.Errorf("AllowPM() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanChangeSubjectConfigPrecedence(t *testing.T) {
	env := newTestEnv(t)
	room := env.conversation(t, "room@muc.example").Room()
	room.SetSelf(Occupant{
		FullAddress: jid.MustParse("room@muc.example/me"),
		Role:        RoleParticipant,
	})

	room.SetInfo(&InfoQuery{})
	if room.CanChangeSubject() {
		t.Error("default should deny subject changes to participants")
	}

	room.SetInfo(&InfoQuery{Forms: []xdata.Form{roomInfoForm(map[string]string{
		FieldChangeSubjectInfo: "1",
	})}})
	if !room.CanChangeSubject() {
		t.Error("roominfo field should allow subject changes")
	}

	// The config field wins over the roominfo one.
	room.SetInfo(&InfoQuery{Forms: []xdata.Form{roomInfoForm(map[string]string{
		FieldChangeSubject:     "0",
		FieldChangeSubjectInfo: "1",
	})}})
	if room.CanChangeSubject() {
		t.Error("config field should override the roominfo field")
	}

	room.SetSelf(Occupant{
		FullAddress: jid.MustParse("room@muc.example/me"),
		Role:        RoleModerator,
	})
	if !room.CanChangeSubject() {
		t.Error("moderators may always change the subject")
	}
}

func TestPasswordBookmarkFallback(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, "room@muc.example")
	room := conv.Room()
	if got := room.Password(); got != "" {
		t.Errorf("password = %q, want empty", got)
	}
	conv.SetBookmark(&Bookmark{Address: conv.Address(), Password: "hunter2"})
	if got := room.Password(); got != "hunter2" {
		t.Errorf("password = %q, want bookmark fallback", got)
	}
	room.SetPassword("swordfish")
	if got := room.Password(); got != "swordfish" {
		t.Errorf("password = %q, want attribute to win", got)
	}
	if got := conv.Bookmark().Password; got != "swordfish" {
		t.Errorf("bookmark password = %q, want sync", got)
	}
}

func TestProposedNickPrecedence(t *testing.T) {
	env := newTestEnv(t)

	conv := env.conversation(t, "room@muc.example")
	if got := conv.Room().ProposedNick(); got != "Tester" {
		t.Errorf("ProposedNick = %q, want display name", got)
	}

	conv2 := env.conversation(t, "other@muc.example/wanted")
	if got := conv2.Room().ProposedNick(); got != "wanted" {
		t.Errorf("ProposedNick = %q, want address resource", got)
	}

	conv2.SetBookmark(&Bookmark{Address: conv2.Address().Bare(), Nick: "bookmarked"})
	if got := conv2.Room().ProposedNick(); got != "bookmarked" {
		t.Errorf("ProposedNick = %q, want bookmark nick", got)
	}
}

func TestTrueCounterpart(t *testing.T) {
	env := newTestEnv(t)
	room := env.conversation(t, "room@muc.example").Room()
	room.SetInfo(&InfoQuery{Features: []string{FeatureMembersOnly, FeatureNonAnonymous}})
	room.SetSelf(Occupant{FullAddress: jid.MustParse("room@muc.example/me")})
	room.UpdateOccupant(&Occupant{
		FullAddress: jid.MustParse("room@muc.example/bob"),
		RealAddress: jid.MustParse("bob@example.org"),
		Affiliation: AffiliationMember,
		Role:        RoleParticipant,
	})

	if got := room.TrueCounterpart(jid.MustParse("room@muc.example/me")); got != env.account.Address() {
		t.Errorf("self counterpart = %s, want account address", got)
	}
	if got := room.TrueCounterpart(jid.MustParse("room@muc.example/bob")); got != jid.MustParse("bob@example.org") {
		t.Errorf("counterpart = %s, want real address", got)
	}
	if got := room.TrueCounterpart(jid.MustParse("room@muc.example/ghost")); !got.IsZero() {
		t.Errorf("unknown counterpart = %s, want zero", got)
	}
}

func TestResetRoomPreservesAutoPushOptOut(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, "room@muc.example")
	conv.Room().SetAutoPushConfiguration(false)
	room := conv.ResetRoom(env.account)
	if room.AutoPushConfiguration() {
		t.Error("reset re-enabled the configuration auto-push")
	}
}
