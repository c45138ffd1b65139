// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package xdata

import "testing"

func roomInfoForm() *Form {
	return &Form{
		Type: "result",
		Fields: []Field{
			{Var: "FORM_TYPE", Values: []string{"http://jabber.org/protocol/muc#roominfo"}},
			{Var: "muc#roomconfig_roomname", Values: []string{"The Lounge"}},
			{Var: "muc#roomconfig_allowinvites", Values: []string{"1"}},
			{Var: "muc#roomconfig_changesubject", Values: []string{"false"}},
			{Var: "muc#roomconfig_allowpm", Values: []string{"participants"}},
		},
	}
}

func TestFieldLookup(t *testing.T) {
	form := roomInfoForm()
	if got := form.FormType(); got != "http://jabber.org/protocol/muc#roominfo" {
		t.Errorf("FormType() = %q", got)
	}
	if got := form.Value("muc#roomconfig_roomname"); got != "The Lounge" {
		t.Errorf("room name = %q", got)
	}
	if form.Field("muc#roomconfig_maxusers") != nil {
		t.Error("lookup of absent field returned non-nil")
	}
	if form.Value("muc#roomconfig_maxusers") != "" {
		t.Error("value of absent field not empty")
	}
}

func TestFieldBool(t *testing.T) {
	form := roomInfoForm()
	if !form.Field("muc#roomconfig_allowinvites").Bool() {
		t.Error("allowinvites should be true for value \"1\"")
	}
	if form.Field("muc#roomconfig_changesubject").Bool() {
		t.Error("changesubject should be false for value \"false\"")
	}
	if form.Field("absent").Bool() {
		t.Error("absent field should be false")
	}
}

func TestNilSafety(t *testing.T) {
	var form *Form
	if form.Field("anything") != nil {
		t.Error("nil form lookup returned non-nil")
	}
	var field *Field
	if field.Value() != "" || field.Bool() {
		t.Error("nil field should read as empty and false")
	}
}

func TestSubmit(t *testing.T) {
	form := roomInfoForm()
	submitted := form.Submit(map[string][]string{
		"muc#roomconfig_roomname": {"Renamed"},
		"members_by_default":      {"1"},
	})
	if submitted.Type != "submit" {
		t.Errorf("type = %q, want submit", submitted.Type)
	}
	if got := submitted.Value("muc#roomconfig_roomname"); got != "Renamed" {
		t.Errorf("replaced value = %q", got)
	}
	if got := submitted.Value("muc#roomconfig_allowpm"); got != "participants" {
		t.Errorf("untouched value = %q", got)
	}
	if got := submitted.Value("members_by_default"); got != "1" {
		t.Errorf("appended value = %q", got)
	}
	// The original form is not modified.
	if got := form.Value("muc#roomconfig_roomname"); got != "The Lounge" {
		t.Errorf("original mutated: %q", got)
	}
}
