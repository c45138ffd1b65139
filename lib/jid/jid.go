// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

package jid

import (
	"fmt"
	"strings"
)

// JID is a validated XMPP address (e.g. "room@muc.example.org/nick").
//
// JID is an immutable value type and comparable with ==. The zero
// value represents "no address"; use IsZero to check.
type JID struct {
	local    string
	domain   string
	resource string
}

// Parse validates and splits a raw address string. The domain is
// required; localpart and resource are optional. Returns an error for
// an empty string, an empty part around a separator, or forbidden
// characters in the localpart.
func Parse(raw string) (JID, error) {
	if raw == "" {
		return JID{}, fmt.Errorf("empty address")
	}

	rest := raw
	var resource string
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		resource = rest[slash+1:]
		rest = rest[:slash]
		if resource == "" {
			return JID{}, fmt.Errorf("address has empty resource: %q", raw)
		}
	}

	var local string
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		local = rest[:at]
		rest = rest[at+1:]
		if local == "" {
			return JID{}, fmt.Errorf("address has empty localpart: %q", raw)
		}
		if strings.ContainsAny(local, "@/ \t\n\"&'<>:") {
			return JID{}, fmt.Errorf("address has forbidden character in localpart: %q", raw)
		}
	}

	if rest == "" {
		return JID{}, fmt.Errorf("address has empty domain: %q", raw)
	}
	if strings.ContainsAny(rest, "@ \t\n") {
		return JID{}, fmt.Errorf("address has forbidden character in domain: %q", raw)
	}

	return JID{local: local, domain: rest, resource: resource}, nil
}

// MustParse is Parse that panics on error. For constants in tests and
// initialization code where the input is known to be valid.
func MustParse(raw string) JID {
	parsed, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("jid: %v", err))
	}
	return parsed
}

// String returns the canonical string form. The zero value returns "".
func (j JID) String() string {
	if j.domain == "" {
		return ""
	}
	var builder strings.Builder
	if j.local != "" {
		builder.WriteString(j.local)
		builder.WriteByte('@')
	}
	builder.WriteString(j.domain)
	if j.resource != "" {
		builder.WriteByte('/')
		builder.WriteString(j.resource)
	}
	return builder.String()
}

// IsZero reports whether the JID is the zero value (no address).
func (j JID) IsZero() bool { return j.domain == "" }

// Localpart returns the part before the '@', or "" for a domain JID.
func (j JID) Localpart() string { return j.local }

// Domain returns the domain part.
func (j JID) Domain() string { return j.domain }

// Resource returns the part after the '/', or "" for a bare JID.
func (j JID) Resource() string { return j.resource }

// Bare returns the JID with the resource stripped.
func (j JID) Bare() JID { return JID{local: j.local, domain: j.domain} }

// DomainJID returns the JID reduced to its domain.
func (j JID) DomainJID() JID { return JID{domain: j.domain} }

// IsBare reports whether the JID has no resource. The zero value is
// not bare; it is no address at all.
func (j JID) IsBare() bool { return j.domain != "" && j.resource == "" }

// IsFull reports whether the JID carries a resource.
func (j JID) IsFull() bool { return j.resource != "" }

// IsDomain reports whether the JID is a bare domain (no localpart).
func (j JID) IsDomain() bool {
	return j.domain != "" && j.local == "" && j.resource == ""
}

// WithResource returns a copy of the bare form of j carrying the given
// resource. Returns an error if the resource is empty or contains a
// slash; nicknames arrive from servers and bookmarks and are not
// trusted to be well formed.
func (j JID) WithResource(resource string) (JID, error) {
	if j.IsZero() {
		return JID{}, fmt.Errorf("cannot attach resource to zero address")
	}
	if resource == "" {
		return JID{}, fmt.Errorf("empty resource")
	}
	if strings.ContainsAny(resource, "/\n") {
		return JID{}, fmt.Errorf("forbidden character in resource: %q", resource)
	}
	return JID{local: j.local, domain: j.domain, resource: resource}, nil
}

// MarshalText implements encoding.TextMarshaler. The zero value
// marshals to an empty string.
func (j JID) MarshalText() ([]byte, error) {
	return []byte(j.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value (unset address).
func (j *JID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*j = JID{}
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
