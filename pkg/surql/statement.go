package surql

import (
	"fmt"
	"sort"
	"strings"
)

// Statement is a ready-to-submit SurrealQL statement.
type Statement struct {
	Text string
	// Vars holds bound parameters; nil when nothing is bound.
	Vars map[string]any
}

func (s Statement) String() string {
	return s.Text
}

// RelateRequest describes one edge to create.
type RelateRequest struct {
	Source      string         `json:"source"`
	EdgeTable   string         `json:"edge_table"`
	Destination string         `json:"destination"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// reserved edge fields the store fills in itself
var reservedEdgeFields = map[string]bool{"id": true, "in": true, "out": true}

// Option configures a Builder.
type Option func(*Builder)

// WithEdgeIDs sets the edge id strategy. The default is StoreULID.
func WithEdgeIDs(g EdgeIDGenerator) Option {
	return func(b *Builder) {
		if g != nil {
			b.ids = g
		}
	}
}

// WithValueMode sets how payload values are encoded. The default is Bind.
func WithValueMode(m ValueMode) Option {
	return func(b *Builder) {
		b.mode = m
	}
}

// Builder constructs statements. It is stateless apart from its options and
// safe for concurrent use as long as its EdgeIDGenerator is.
type Builder struct {
	ids  EdgeIDGenerator
	mode ValueMode
}

// NewBuilder returns a Builder with the given options applied.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{ids: StoreULID, mode: Bind}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EdgeIDs returns the configured edge id strategy.
func (b *Builder) EdgeIDs() EdgeIDGenerator { return b.ids }

// Mode returns the configured value mode.
func (b *Builder) Mode() ValueMode { return b.mode }

// Relate builds:
//
//	RELATE <source> -> <edge>:<id> -> <destination>[ SET k1 = v1, k2 = v2]
//
// Payload keys are emitted in sorted order.
func (b *Builder) Relate(req RelateRequest) (Statement, error) {
	src, err := ParseRecordRefAs("source", req.Source)
	if err != nil {
		return Statement{}, err
	}
	if err := ValidateIdentifier("edge table", req.EdgeTable); err != nil {
		return Statement{}, err
	}
	dst, err := ParseRecordRefAs("destination", req.Destination)
	if err != nil {
		return Statement{}, err
	}

	set, vars, err := b.assignments(req.Payload, reservedEdgeFields)
	if err != nil {
		return Statement{}, err
	}

	id, err := b.ids.NextEdgeID()
	if err != nil {
		return Statement{}, err
	}

	text := fmt.Sprintf("RELATE %s -> %s:%s -> %s", src, req.EdgeTable, id, dst)
	if set != "" {
		text += " SET " + set
	}
	return Statement{Text: text, Vars: vars}, nil
}

// AnyTable matches every destination table in Relations.
const AnyTable = "?"

// Relations builds a traversal from start across edgeTable into endTable:
//
//	SELECT ->edge->end FROM start
func (b *Builder) Relations(start, edgeTable, endTable string, dir Direction) (Statement, error) {
	ref, err := ParseRecordRefAs("start", start)
	if err != nil {
		return Statement{}, err
	}
	if err := ValidateIdentifier("edge table", edgeTable); err != nil {
		return Statement{}, err
	}
	if endTable != AnyTable {
		if err := ValidateIdentifier("end table", endTable); err != nil {
			return Statement{}, err
		}
	}
	if err := checkDirection(dir); err != nil {
		return Statement{}, err
	}
	return Statement{Text: fmt.Sprintf("SELECT %s%s%s%s FROM %s", dir, edgeTable, dir, endTable, ref)}, nil
}

// Edges selects the full edge records leaving (or entering) start:
//
//	SELECT ->edge.* FROM start
func (b *Builder) Edges(start, edgeTable string, dir Direction) (Statement, error) {
	ref, err := ParseRecordRefAs("start", start)
	if err != nil {
		return Statement{}, err
	}
	if err := ValidateIdentifier("edge table", edgeTable); err != nil {
		return Statement{}, err
	}
	if err := checkDirection(dir); err != nil {
		return Statement{}, err
	}
	return Statement{Text: fmt.Sprintf("SELECT %s%s.* FROM %s", dir, edgeTable, ref)}, nil
}

// Upsert creates or updates a node record with the given fields:
//
//	UPSERT table:key SET k1 = v1, ...
func (b *Builder) Upsert(record string, fields map[string]any) (Statement, error) {
	ref, err := ParseRecordRefAs("record", record)
	if err != nil {
		return Statement{}, err
	}
	set, vars, err := b.assignments(fields, map[string]bool{"id": true})
	if err != nil {
		return Statement{}, err
	}
	text := "UPSERT " + ref.String()
	if set != "" {
		text += " SET " + set
	}
	return Statement{Text: text, Vars: vars}, nil
}

func checkDirection(dir Direction) error {
	if dir != Out && dir != In {
		return &InvalidReferenceError{Role: "direction", Value: string(dir), Reason: "expected -> or <-"}
	}
	return nil
}

// assignments renders "k1 = v1, k2 = v2" for the payload in sorted key order.
// In Bind mode values become $v0, $v1, ... RecordRef values are always written
// bare so that they stay record links.
func (b *Builder) assignments(payload map[string]any, reserved map[string]bool) (string, map[string]any, error) {
	if len(payload) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if reserved[k] {
			return "", nil, &InvalidPayloadError{Key: k, Reason: "field is reserved"}
		}
		if !identPattern.MatchString(k) {
			return "", nil, &InvalidPayloadError{Key: k, Reason: "key contains characters outside [A-Za-z0-9_]"}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var vars map[string]any
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := payload[k]
		var expr string

		switch ref := v.(type) {
		case RecordRef:
			if _, err := ParseRecordRef(ref.String()); err != nil {
				return "", nil, &InvalidPayloadError{Key: k, Reason: err.Error()}
			}
			expr = ref.String()
		default:
			if b.mode == Inline {
				lit, err := Literal(v)
				if err != nil {
					return "", nil, &InvalidPayloadError{Key: k, Reason: err.Error()}
				}
				expr = lit
			} else {
				if err := checkBindable(v); err != nil {
					return "", nil, &InvalidPayloadError{Key: k, Reason: err.Error()}
				}
				if vars == nil {
					vars = make(map[string]any, len(keys))
				}
				name := fmt.Sprintf("v%d", len(vars))
				vars[name] = v
				expr = "$" + name
			}
		}
		parts = append(parts, k+" = "+expr)
	}
	return strings.Join(parts, ", "), vars, nil
}
