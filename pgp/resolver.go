// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package pgp resolves the signing key of legacy signed presence
// (XEP-0027). The presence carries a detached OpenPGP signature over
// the status text, base64-encoded without armor; the engine only
// needs the issuer key id to associate the occupant with a known key.
package pgp

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
)

// Resolver extracts issuer key ids from presence signatures. It
// implements the engine's KeyResolver collaborator. The zero value is
// not usable; construct with New.
type Resolver struct {
	logger *slog.Logger
}

// New creates a resolver.
func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{logger: logger}
}

// KeyID parses the signature and returns the issuer key id of its
// first signature packet. ok is false when the data is not a
// well-formed signature. The status text itself is not verified; the
// engine treats the key association as a hint until real verification
// happens at the encryption layer.
func (r *Resolver) KeyID(status, signature string) (uint64, bool) {
	raw, err := decodeSignature(signature)
	if err != nil {
		r.logger.Debug("presence signature decode failed", "error", err)
		return 0, false
	}

	reader := packet.NewReader(bytes.NewReader(raw))
	for {
		p, err := reader.Next()
		if err == io.EOF {
			return 0, false
		}
		if err != nil {
			r.logger.Debug("presence signature parse failed", "error", err)
			return 0, false
		}
		switch sig := p.(type) {
		case *packet.Signature:
			if sig.IssuerKeyId == nil {
				continue
			}
			return *sig.IssuerKeyId, true
		case *packet.SignatureV3:
			return sig.IssuerKeyId, true
		}
	}
}

// decodeSignature accepts both the bare base64 payload XEP-0027
// prescribes and a full armored signature block some clients send.
func decodeSignature(signature string) ([]byte, error) {
	if strings.Contains(signature, "-----BEGIN PGP") {
		block, err := armor.Decode(strings.NewReader(signature))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(block.Body)
	}
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, signature)
	return base64.StdEncoding.DecodeString(compact)
}
