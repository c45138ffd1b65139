// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// conclave-replay feeds a recorded presence stream through the MUC
// engine and prints the resulting room state. It exists for debugging
// session divergence: capture the presence stanzas a misbehaving
// server sent, replay them here, and inspect what the engine made of
// them, without needing a server or account.
//
// The input is JSONL, one record per line:
//
//	{"info": {"room": "room@muc.example", "info": {"features": [...]}}}
//	{"presence": {"from": "room@muc.example/nick", "muc_user": {...}}}
//
// Info records install a discovery snapshot so that feature-gated
// reconciliation (occupant ids, ghost retention) behaves as it did
// against the live server. Presence records run through the regular
// reconciler. Outgoing stanzas the engine would send are recorded and
// counted, never delivered; timers (the rejoin backoff) are driven by
// a fake clock and never fire.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/conclave-im/conclave/lib/clock"
	"github.com/conclave-im/conclave/lib/jid"
	"github.com/conclave-im/conclave/muc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var accountFlag string
	var displayName string
	var logLevel string
	var jsonOutput bool

	flagSet := pflag.NewFlagSet("conclave-replay", pflag.ContinueOnError)
	flagSet.StringVar(&accountFlag, "account", "replay@localhost", "bare address the stream was recorded for")
	flagSet.StringVar(&displayName, "display-name", "", "account display name (nickname source)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "engine log level: debug, info, warn, error")
	flagSet.BoolVar(&jsonOutput, "json", false, "print the final state as JSON")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) > 1 {
		return fmt.Errorf("unexpected argument: %s", args[1])
	}
	input := os.Stdin
	if len(args) == 1 && args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	address, err := jid.Parse(accountFlag)
	if err != nil {
		return fmt.Errorf("--account: %w", err)
	}
	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	transport := &recordingTransport{}
	events := &eventCounter{}
	manager := muc.NewManager(muc.ManagerConfig{
		Account:   muc.NewAccount(address.Bare(), displayName),
		Transport: transport,
		Notifier:  events,
		Clock:     clock.Fake(time.Unix(0, 0)),
		Logger:    logger,
	})

	lines, err := replay(manager, input)
	if err != nil {
		return err
	}
	sentPresences, sentIQs := transport.counts()
	logger.Info("replay finished",
		"records", lines,
		"sent_presences", sentPresences,
		"sent_iqs", sentIQs,
	)

	return report(os.Stdout, manager, events, jsonOutput)
}

type record struct {
	Presence *muc.Presence `json:"presence,omitempty"`
	Info     *infoRecord   `json:"info,omitempty"`
}

type infoRecord struct {
	Room jid.JID       `json:"room"`
	Info muc.InfoQuery `json:"info"`
}

func replay(manager *muc.Manager, input io.Reader) (int, error) {
	ctx := context.Background()
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lines := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return lines, fmt.Errorf("line %d: %w", lines, err)
		}
		switch {
		case rec.Info != nil:
			conv := manager.FindOrCreateConversation(rec.Info.Room)
			info := rec.Info.Info
			conv.Room().SetInfo(&info)
		case rec.Presence != nil:
			manager.HandlePresence(ctx, rec.Presence)
		default:
			return lines, fmt.Errorf("line %d: neither presence nor info", lines)
		}
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("reading input: %w", err)
	}
	return lines, nil
}

// roomReport is the per-room slice of final state the tool prints.
type roomReport struct {
	Room        string           `json:"room"`
	Name        string           `json:"name,omitempty"`
	Online      bool             `json:"online"`
	Error       string           `json:"error,omitempty"`
	Nick        string           `json:"nick,omitempty"`
	Affiliation muc.Affiliation  `json:"affiliation,omitempty"`
	Role        muc.Role         `json:"role,omitempty"`
	Subject     string           `json:"subject,omitempty"`
	Occupants   []occupantReport `json:"occupants,omitempty"`
	Events      int              `json:"events"`
}

type occupantReport struct {
	Nick        string          `json:"nick"`
	Real        string          `json:"real,omitempty"`
	Affiliation muc.Affiliation `json:"affiliation"`
	Role        muc.Role        `json:"role"`
	Online      bool            `json:"online"`
}

func report(out io.Writer, manager *muc.Manager, events *eventCounter, jsonOutput bool) error {
	conversations := manager.Conversations()
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].Address().String() < conversations[j].Address().String()
	})

	reports := make([]roomReport, 0, len(conversations))
	for _, conv := range conversations {
		room := conv.Room()
		self := room.Self()
		r := roomReport{
			Room:        conv.Address().Bare().String(),
			Name:        manager.ConversationName(conv),
			Online:      room.Online(),
			Nick:        self.Nick(),
			Affiliation: self.Affiliation,
			Role:        self.Role,
			Subject:     room.Subject(),
			Events:      events.count(conv.Address().Bare()),
		}
		if roomErr := room.Error(); roomErr != muc.RoomErrorNone {
			r.Error = roomErr.String()
		}
		for _, o := range room.Occupants(true) {
			r.Occupants = append(r.Occupants, occupantReport{
				Nick:        o.Nick(),
				Real:        o.RealAddress.String(),
				Affiliation: o.Affiliation,
				Role:        o.Role,
				Online:      o.Online(),
			})
		}
		reports = append(reports, r)
	}

	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)
	}

	for _, r := range reports {
		state := "offline"
		if r.Online {
			state = "online"
		}
		fmt.Fprintf(out, "%s  %s", r.Room, state)
		if r.Name != "" && r.Name != r.Room {
			fmt.Fprintf(out, "  name=%q", r.Name)
		}
		if r.Error != "" {
			fmt.Fprintf(out, "  error=%s", r.Error)
		}
		if r.Nick != "" {
			fmt.Fprintf(out, "  self=%s (%s/%s)", r.Nick, r.Affiliation, r.Role)
		}
		fmt.Fprintf(out, "  events=%d\n", r.Events)
		for _, o := range r.Occupants {
			marker := " "
			if !o.Online {
				marker = "~" // ghost or offline member
			}
			fmt.Fprintf(out, "  %s %-20s %s/%s", marker, o.Nick, o.Affiliation, o.Role)
			if o.Real != "" {
				fmt.Fprintf(out, "  %s", o.Real)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("--log-level must be one of debug, info, warn, error; got %q", name)
	}
}

// recordingTransport counts what the engine would have sent. Replay
// never talks to a server. The engine sends from its own goroutines
// (the post-creation configuration push, parallel member fetches), so
// the counters are mutex-guarded.
type recordingTransport struct {
	mu        sync.Mutex
	presences int
	iqs       int
}

func (t *recordingTransport) SendPresence(_ context.Context, _ *muc.Presence) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.presences++
	return nil
}

func (t *recordingTransport) SendIQ(_ context.Context, _ *muc.IQ) (*muc.IQ, error) {
	t.mu.Lock()
	t.iqs++
	t.mu.Unlock()
	return nil, &muc.StanzaError{Condition: muc.ConditionServiceUnavailable}
}

func (t *recordingTransport) counts() (presences, iqs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.presences, t.iqs
}

// eventCounter tallies notifier callbacks per room.
type eventCounter struct {
	mu     sync.Mutex
	counts map[jid.JID]int
}

func (e *eventCounter) bump(room *muc.Room) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.counts == nil {
		e.counts = make(map[jid.JID]int)
	}
	e.counts[room.Address()]++
}

func (e *eventCounter) count(room jid.JID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[room]
}

func (e *eventCounter) OccupantsChanged(room *muc.Room) { e.bump(room) }
func (e *eventCounter) RoomStateChanged(room *muc.Room) { e.bump(room) }

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `conclave-replay replays a recorded MUC presence stream.

Reads JSONL records from the given file (or stdin) and feeds them
through the session engine, then prints the final per-room state:
online flag, session error, self occupant, and the occupant registry
including retained ghost members.

Usage:
  conclave-replay [flags] [stream.jsonl]

Flags:
%s`, flagSet.FlagUsages())
}
