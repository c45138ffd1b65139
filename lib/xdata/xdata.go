// Copyright 2026 The Conclave Authors
// SPDX-License-Identifier: Apache-2.0

// Package xdata models XMPP data forms (XEP-0004) as received in
// service discovery extensions and room configuration exchanges. The
// package only reads and rewrites field values; serialization to the
// wire belongs to the transport layer.
package xdata

// Form is a data form: a typed collection of named fields. Room
// discovery attaches forms keyed by their FORM_TYPE field (e.g.
// "http://jabber.org/protocol/muc#roominfo").
type Form struct {
	Type   string  `json:"type,omitempty"` // "form", "submit", "result"
	Fields []Field `json:"fields,omitempty"`
}

// Field is a single form field with zero or more values.
type Field struct {
	Var    string   `json:"var"`
	Values []string `json:"values,omitempty"`
}

// FormType returns the value of the hidden FORM_TYPE field, or "".
func (f *Form) FormType() string {
	return f.Value("FORM_TYPE")
}

// Field returns the field with the given var name, or nil.
func (f *Form) Field(name string) *Field {
	if f == nil {
		return nil
	}
	for i := range f.Fields {
		if f.Fields[i].Var == name {
			return &f.Fields[i]
		}
	}
	return nil
}

// Value returns the first value of the named field, or "" when the
// field is absent or empty.
func (f *Form) Value(name string) string {
	return f.Field(name).Value()
}

// Value returns the field's first value, or "". Safe on a nil field.
func (f *Field) Value() string {
	if f == nil || len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Bool interprets the field per the XEP-0004 boolean lexical space:
// "1" and "true" are true, everything else (including an absent
// field) is false.
func (f *Field) Bool() bool {
	value := f.Value()
	return value == "1" || value == "true"
}

// Submit returns a copy of the form with type "submit" whose fields
// carry the given replacement values. Fields not named in values keep
// their current (default) values; names in values with no matching
// field are appended as new fields, which some servers require for
// their proprietary configuration keys.
func (f *Form) Submit(values map[string][]string) Form {
	submitted := Form{Type: "submit"}
	seen := make(map[string]bool, len(f.Fields))
	for _, field := range f.Fields {
		seen[field.Var] = true
		if replacement, ok := values[field.Var]; ok {
			submitted.Fields = append(submitted.Fields, Field{Var: field.Var, Values: replacement})
		} else {
			submitted.Fields = append(submitted.Fields, Field{Var: field.Var, Values: field.Values})
		}
	}
	for name, value := range values {
		if !seen[name] {
			submitted.Fields = append(submitted.Fields, Field{Var: name, Values: value})
		}
	}
	return submitted
}
