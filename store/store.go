// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists conversations and bookmarks in SQLite.
//
// Each conversation row carries the durable attribute map as a
// deterministic CBOR blob and the last room discovery snapshot as a
// zstd-compressed CBOR blob (discovery snapshots repeat long feature
// URIs and compress well). Bookmarks live in their own table keyed by
// the bare room address.
//
// Store implements muc.Store; the engine calls it after durable state
// changes.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/conclave-im/conclave/lib/clock"
	"github.com/conclave-im/conclave/lib/codec"
	"github.com/conclave-im/conclave/lib/jid"
	"github.com/conclave-im/conclave/lib/sqlitepool"
	"github.com/conclave-im/conclave/muc"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		address      TEXT PRIMARY KEY,  -- bare room address
		full_address TEXT NOT NULL,     -- address with the joined nick resource
		attributes   BLOB NOT NULL,     -- CBOR map[string]string
		disco        BLOB,              -- zstd(CBOR InfoQuery), NULL when never discovered
		last_message INTEGER NOT NULL,  -- Unix nanoseconds, 0 = never
		more_history INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bookmarks (
		address    TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		nick       TEXT NOT NULL DEFAULT '',
		password   TEXT NOT NULL DEFAULT '',
		autojoin   INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
`

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file; created if absent. Tests
	// use a file under t.TempDir; plain ":memory:" is rejected by
	// the pool.
	Path string

	// PoolSize is the connection pool size. Zero selects the pool
	// default.
	PoolSize int

	// Clock stamps rows. Nil selects the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open creates the store, creating the database schema if needed.
func Open(cfg Config) (*Store, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{pool: pool, clock: clk, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// SaveConversation writes the conversation's durable state: address,
// attribute map, discovery snapshot, and history markers.
func (s *Store) SaveConversation(ctx context.Context, c *muc.Conversation) error {
	address := c.Address()
	attributes, err := codec.Marshal(c.Attributes())
	if err != nil {
		return fmt.Errorf("store: marshal attributes for %s: %w", address.Bare(), err)
	}

	var disco any
	if info := c.Room().Info(); info != nil {
		raw, err := codec.Marshal(info)
		if err != nil {
			return fmt.Errorf("store: marshal discovery snapshot for %s: %w", address.Bare(), err)
		}
		disco = zstdEncoder.EncodeAll(raw, nil)
	}

	var lastMessage int64
	if t := c.LastMessageTime(); !t.IsZero() {
		lastMessage = t.UnixNano()
	}
	moreHistory := 0
	if c.HasMoreHistory() {
		moreHistory = 1
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: save conversation: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO conversations
		(address, full_address, attributes, disco, last_message, more_history, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			full_address = excluded.full_address,
			attributes   = excluded.attributes,
			disco        = excluded.disco,
			last_message = excluded.last_message,
			more_history = excluded.more_history,
			updated_at   = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				address.Bare().String(),
				address.String(),
				attributes,
				disco,
				lastMessage,
				moreHistory,
				s.clock.Now().UnixNano(),
			},
		})
	if err != nil {
		return fmt.Errorf("store: save conversation %s: %w", address.Bare(), err)
	}
	return nil
}

// SaveBookmark writes or replaces the bookmark for its room.
func (s *Store) SaveBookmark(ctx context.Context, b *muc.Bookmark) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: save bookmark: %w", err)
	}
	defer s.pool.Put(conn)

	autojoin := 0
	if b.Autojoin {
		autojoin = 1
	}
	err = sqlitex.Execute(conn, `INSERT INTO bookmarks
		(address, name, nick, password, autojoin, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name       = excluded.name,
			nick       = excluded.nick,
			password   = excluded.password,
			autojoin   = excluded.autojoin,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				b.Address.Bare().String(),
				b.Name,
				b.Nick,
				b.Password,
				autojoin,
				s.clock.Now().UnixNano(),
			},
		})
	if err != nil {
		return fmt.Errorf("store: save bookmark %s: %w", b.Address.Bare(), err)
	}
	return nil
}

// DeleteConversation removes a conversation row and its bookmark.
func (s *Store) DeleteConversation(ctx context.Context, address jid.JID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete conversation: %w", err)
	}
	defer s.pool.Put(conn)

	bare := address.Bare().String()
	for _, query := range []string{
		"DELETE FROM conversations WHERE address = ?",
		"DELETE FROM bookmarks WHERE address = ?",
	} {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{bare}}); err != nil {
			return fmt.Errorf("store: delete conversation %s: %w", bare, err)
		}
	}
	return nil
}

// Conversations loads all persisted conversations for the account,
// reattaching bookmarks and discovery snapshots.
func (s *Store) Conversations(ctx context.Context, account *muc.Account) ([]*muc.Conversation, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load conversations: %w", err)
	}
	defer s.pool.Put(conn)

	bookmarks, err := s.bookmarks(conn)
	if err != nil {
		return nil, err
	}

	var conversations []*muc.Conversation
	var scanErr error
	err = sqlitex.Execute(conn, `SELECT address, full_address, attributes,
		disco, last_message, more_history FROM conversations ORDER BY address`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				conversation, err := s.scanConversation(stmt, account)
				if err != nil {
					// One corrupt row must not take down the whole
					// account load.
					s.logger.Warn("skipping unreadable conversation row",
						"address", stmt.ColumnText(0), "error", err)
					scanErr = err
					return nil
				}
				if bookmark, ok := bookmarks[conversation.Address().Bare()]; ok {
					conversation.SetBookmark(bookmark)
				}
				conversations = append(conversations, conversation)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: load conversations: %w", err)
	}
	if len(conversations) == 0 && scanErr != nil {
		return nil, fmt.Errorf("store: load conversations: %w", scanErr)
	}
	return conversations, nil
}

func (s *Store) scanConversation(stmt *sqlite.Stmt, account *muc.Account) (*muc.Conversation, error) {
	// Columns: address(0), full_address(1), attributes(2), disco(3),
	// last_message(4), more_history(5)
	address, err := jid.Parse(stmt.ColumnText(1))
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}

	conversation := muc.NewConversation(address, account)

	attrBlob := columnBlob(stmt, 2)
	var attributes map[string]string
	if err := codec.Unmarshal(attrBlob, &attributes); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	conversation.SetAttributes(attributes)

	if !stmt.ColumnIsNull(3) {
		raw, err := zstdDecoder.DecodeAll(columnBlob(stmt, 3), nil)
		if err != nil {
			return nil, fmt.Errorf("decompress discovery snapshot: %w", err)
		}
		var info muc.InfoQuery
		if err := codec.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("unmarshal discovery snapshot: %w", err)
		}
		conversation.Room().SetInfo(&info)
	}

	if nanos := stmt.ColumnInt64(4); nanos > 0 {
		conversation.SetLastMessageTime(time.Unix(0, nanos))
	}
	conversation.SetHasMoreHistory(stmt.ColumnInt(5) != 0)
	return conversation, nil
}

// Bookmarks returns all saved bookmarks keyed by bare room address.
func (s *Store) Bookmarks(ctx context.Context) (map[jid.JID]*muc.Bookmark, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load bookmarks: %w", err)
	}
	defer s.pool.Put(conn)
	return s.bookmarks(conn)
}

func (s *Store) bookmarks(conn *sqlite.Conn) (map[jid.JID]*muc.Bookmark, error) {
	bookmarks := make(map[jid.JID]*muc.Bookmark)
	err := sqlitex.Execute(conn,
		"SELECT address, name, nick, password, autojoin FROM bookmarks",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				address, err := jid.Parse(stmt.ColumnText(0))
				if err != nil {
					s.logger.Warn("skipping bookmark with unparseable address",
						"address", stmt.ColumnText(0), "error", err)
					return nil
				}
				bookmarks[address.Bare()] = &muc.Bookmark{
					Address:  address.Bare(),
					Name:     stmt.ColumnText(1),
					Nick:     stmt.ColumnText(2),
					Password: stmt.ColumnText(3),
					Autojoin: stmt.ColumnInt(4) != 0,
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: load bookmarks: %w", err)
	}
	return bookmarks, nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	blob := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, blob)
	return blob
}
