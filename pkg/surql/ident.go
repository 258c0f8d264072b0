package surql

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	keyOpen  = '⟨'
	keyClose = '⟩'
)

var (
	identPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	plainKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// RecordRef identifies a single record as table:key.
type RecordRef struct {
	Table string
	Key   string
}

// String renders the reference as it appears in a statement.
func (r RecordRef) String() string {
	return r.Table + ":" + r.Key
}

// ParseRecordRef validates s and splits it into table and key.
func ParseRecordRef(s string) (RecordRef, error) {
	return ParseRecordRefAs("record", s)
}

// ParseRecordRefAs is ParseRecordRef with the argument name used in errors.
func ParseRecordRefAs(role, s string) (RecordRef, error) {
	fail := func(reason string) (RecordRef, error) {
		return RecordRef{}, &InvalidReferenceError{Role: role, Value: s, Reason: reason}
	}

	if s == "" {
		return fail("reference is empty")
	}

	table, key, found := strings.Cut(s, ":")
	if !found {
		return fail("missing ':' separator")
	}
	if table == "" {
		return fail("table is empty")
	}
	if key == "" {
		return fail("key is empty")
	}
	if !identPattern.MatchString(table) {
		return fail("table contains characters outside [A-Za-z0-9_]")
	}
	if reason := checkKey(key); reason != "" {
		return fail(reason)
	}

	return RecordRef{Table: table, Key: key}, nil
}

func checkKey(key string) string {
	if plainKeyPattern.MatchString(key) {
		return ""
	}

	first, size := utf8.DecodeRuneInString(key)
	last, lastSize := utf8.DecodeLastRuneInString(key)
	if first != keyOpen {
		if strings.Contains(key, ":") {
			return "more than one ':' separator"
		}
		return "key contains characters outside [A-Za-z0-9_]"
	}
	if last != keyClose || len(key) < size+lastSize {
		return "bracketed key is not terminated"
	}

	inner := key[size : len(key)-lastSize]
	if inner == "" {
		return "bracketed key is empty"
	}
	for _, r := range inner {
		switch {
		case r == keyOpen || r == keyClose:
			return "bracketed key contains a nested bracket"
		case r == ':':
			return "more than one ':' separator"
		case r == '\\' || r == '`':
			// the store reads \⟩ as an escaped bracket, so the key would not end here
			return "bracketed key contains an escape character"
		case unicode.IsControl(r), r == utf8.RuneError:
			return "bracketed key contains control or invalid characters"
		}
	}
	return ""
}

// ValidateIdentifier checks a table, edge table or attribute name against the
// identifier allow-list.
func ValidateIdentifier(role, name string) error {
	if name == "" {
		return &InvalidReferenceError{Role: role, Value: name, Reason: "identifier is empty"}
	}
	if !identPattern.MatchString(name) {
		return &InvalidReferenceError{Role: role, Value: name, Reason: "identifier contains characters outside [A-Za-z0-9_]"}
	}
	return nil
}

// Direction is a graph traversal arrow.
type Direction string

const (
	Out Direction = "->"
	In  Direction = "<-"
)

// ParseDirection accepts the arrow form or the words out/in.
// An empty string means Out.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "->", "out", "outgoing":
		return Out, nil
	case "<-", "in", "incoming":
		return In, nil
	}
	return "", &InvalidReferenceError{Role: "direction", Value: s, Reason: "expected -> or <-"}
}
