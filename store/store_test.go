// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/conclave-im/conclave/lib/clock"
	"github.com/conclave-im/conclave/lib/jid"
	"github.com/conclave-im/conclave/muc"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "store.db"),
		PoolSize: 1,
		Clock:    clock.Fake(time.Unix(1700000000, 0)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestConversationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	account := muc.NewAccount(jid.MustParse("tester@example.org"), "Tester")

	conv := muc.NewConversation(jid.MustParse("room@muc.example/me"), account)
	conv.SetAttribute("muc_password", "hunter2")
	conv.SetCryptoTargets([]jid.JID{jid.MustParse("a@example.org")})
	conv.SetLastMessageTime(time.Unix(1699990000, 42))
	conv.SetHasMoreHistory(true)
	conv.Room().SetInfo(&muc.InfoQuery{
		Features: []string{muc.FeatureMembersOnly, muc.FeatureNonAnonymous, muc.FeatureMAM2},
	})

	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if err := s.SaveBookmark(ctx, &muc.Bookmark{
		Address:  jid.MustParse("room@muc.example"),
		Name:     "The Room",
		Nick:     "me",
		Autojoin: true,
	}); err != nil {
		t.Fatalf("SaveBookmark: %v", err)
	}

	loaded, err := s.Conversations(ctx, account)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d conversations, want 1", len(loaded))
	}
	got := loaded[0]

	if got.Address() != jid.MustParse("room@muc.example/me") {
		t.Errorf("address = %s", got.Address())
	}
	if got.Attribute("muc_password") != "hunter2" {
		t.Errorf("password attribute lost")
	}
	if targets := got.CryptoTargets(); len(targets) != 1 || targets[0] != jid.MustParse("a@example.org") {
		t.Errorf("crypto targets = %v", targets)
	}
	if !got.LastMessageTime().Equal(time.Unix(1699990000, 42)) {
		t.Errorf("last message time = %v", got.LastMessageTime())
	}
	if !got.HasMoreHistory() {
		t.Error("more-history flag lost")
	}
	room := got.Room()
	if !room.MembersOnly() || !room.NonAnonymous() || !room.ArchiveSupport() {
		t.Errorf("discovery snapshot lost: %+v", room.Info())
	}
	bookmark := got.Bookmark()
	if bookmark == nil || bookmark.Name != "The Room" || bookmark.Nick != "me" || !bookmark.Autojoin {
		t.Errorf("bookmark = %+v", bookmark)
	}
}

func TestSaveConversationOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	account := muc.NewAccount(jid.MustParse("tester@example.org"), "Tester")

	conv := muc.NewConversation(jid.MustParse("room@muc.example"), account)
	conv.SetAttribute("muc_password", "old")
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	conv.SetAttribute("muc_password", "new")
	conv.SetAddress(jid.MustParse("room@muc.example/me"))
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	loaded, err := s.Conversations(ctx, account)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d conversations, want 1 after overwrite", len(loaded))
	}
	if loaded[0].Attribute("muc_password") != "new" {
		t.Errorf("overwrite did not take: %q", loaded[0].Attribute("muc_password"))
	}
	if loaded[0].Address() != jid.MustParse("room@muc.example/me") {
		t.Errorf("address = %s", loaded[0].Address())
	}
}

func TestConversationWithoutDiscoOrBookmark(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	account := muc.NewAccount(jid.MustParse("tester@example.org"), "Tester")

	conv := muc.NewConversation(jid.MustParse("bare@muc.example"), account)
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	loaded, err := s.Conversations(ctx, account)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d conversations, want 1", len(loaded))
	}
	if loaded[0].Room().Info() != nil {
		t.Error("phantom discovery snapshot on a never-discovered room")
	}
	if loaded[0].Bookmark() != nil {
		t.Error("phantom bookmark")
	}
	if !loaded[0].LastMessageTime().IsZero() {
		t.Errorf("last message time = %v, want zero", loaded[0].LastMessageTime())
	}
}

func TestDeleteConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	account := muc.NewAccount(jid.MustParse("tester@example.org"), "Tester")

	conv := muc.NewConversation(jid.MustParse("room@muc.example/me"), account)
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if err := s.SaveBookmark(ctx, &muc.Bookmark{Address: jid.MustParse("room@muc.example")}); err != nil {
		t.Fatalf("SaveBookmark: %v", err)
	}

	if err := s.DeleteConversation(ctx, jid.MustParse("room@muc.example/me")); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	loaded, err := s.Conversations(ctx, account)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d conversations after delete", len(loaded))
	}
	bookmarks, err := s.Bookmarks(ctx)
	if err != nil {
		t.Fatalf("Bookmarks: %v", err)
	}
	if len(bookmarks) != 0 {
		t.Errorf("%d bookmarks left after delete", len(bookmarks))
	}
}

func TestStoreSatisfiesEngineInterface(t *testing.T) {
	var _ muc.Store = openTestStore(t)
}
