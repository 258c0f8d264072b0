package surql

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RecordRef
		wantErr string
	}{
		{name: "plain", input: "person:123", want: RecordRef{Table: "person", Key: "123"}},
		{name: "underscore table", input: "_meta:x_1", want: RecordRef{Table: "_meta", Key: "x_1"}},
		{name: "bracketed key", input: "product:⟨ab-12 c⟩", want: RecordRef{Table: "product", Key: "⟨ab-12 c⟩"}},
		{name: "empty", input: "", wantErr: "reference is empty"},
		{name: "no separator", input: "person123", wantErr: "missing ':'"},
		{name: "empty table", input: ":123", wantErr: "table is empty"},
		{name: "empty key", input: "person:", wantErr: "key is empty"},
		{name: "two separators", input: "a:b:c", wantErr: "more than one ':'"},
		{name: "table with digit first", input: "1person:1", wantErr: "table contains"},
		{name: "table with space", input: "per son:1", wantErr: "table contains"},
		{name: "injection in key", input: "person:1; DELETE person", wantErr: "key contains"},
		{name: "unterminated bracket", input: "person:⟨abc", wantErr: "not terminated"},
		{name: "empty bracket", input: "person:⟨⟩", wantErr: "bracketed key is empty"},
		{name: "nested bracket", input: "person:⟨a⟩b⟩", wantErr: "nested bracket"},
		{name: "control char in bracket", input: "person:⟨a\nb⟩", wantErr: "control"},
		{name: "escaped closing bracket", input: `person:⟨x\⟩`, wantErr: "escape character"},
		{name: "backslash inside bracket", input: `person:⟨a\b⟩`, wantErr: "escape character"},
		{name: "backtick inside bracket", input: "person:⟨a`b⟩", wantErr: "escape character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecordRef(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidReference)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestParseRecordRefAs_Role(t *testing.T) {
	_, err := ParseRecordRefAs("destination", "nope")

	var ref *InvalidReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "destination", ref.Role)
	assert.Equal(t, "nope", ref.Value)
	assert.Equal(t, `invalid destination "nope": missing ':' separator`, err.Error())
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("edge table", "HAS_SYMPTOM"))
	assert.NoError(t, ValidateIdentifier("edge table", "_x9"))
	assert.ErrorIs(t, ValidateIdentifier("edge table", ""), ErrInvalidReference)
	assert.ErrorIs(t, ValidateIdentifier("edge table", "order->x"), ErrInvalidReference)
	assert.ErrorIs(t, ValidateIdentifier("edge table", "9lives"), ErrInvalidReference)
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"", "->", "out", "OUT"} {
		d, err := ParseDirection(s)
		require.NoError(t, err)
		assert.Equal(t, Out, d)
	}
	for _, s := range []string{"<-", "in", "incoming"} {
		d, err := ParseDirection(s)
		require.NoError(t, err)
		assert.Equal(t, In, d)
	}
	_, err := ParseDirection("<->")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	str := "x"

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "nil", value: nil, want: "NULL"},
		{name: "string", value: "Fatigue", want: `"Fatigue"`},
		{name: "string escapes", value: "a\"b\\c\nd", want: `"a\"b\\c\nd"`},
		{name: "unicode kept", value: "naïve ⟨x⟩", want: `"naïve ⟨x⟩"`},
		{name: "html not escaped", value: "<b>&", want: `"<b>&"`},
		{name: "bool", value: true, want: "true"},
		{name: "int", value: 42, want: "42"},
		{name: "negative int64", value: int64(-7), want: "-7"},
		{name: "uint", value: uint8(200), want: "200"},
		{name: "float", value: 1.5, want: "1.5"},
		{name: "whole float", value: 2.0, want: "2.0"},
		{name: "time", value: ts, want: `d"2024-03-01T12:30:00Z"`},
		{name: "time pointer", value: &ts, want: `d"2024-03-01T12:30:00Z"`},
		{name: "nil time pointer", value: (*time.Time)(nil), want: "NULL"},
		{name: "record ref pointer", value: &RecordRef{Table: "person", Key: "1"}, want: "person:1"},
		{name: "record ref", value: RecordRef{Table: "person", Key: "1"}, want: "person:1"},
		{name: "pointer", value: &str, want: `"x"`},
		{name: "nil pointer", value: (*string)(nil), want: "NULL"},
		{name: "slice", value: []any{1, "a", nil}, want: `[1, "a", NULL]`},
		{name: "map sorted", value: map[string]any{"b": 1, "a": []string{"x"}}, want: `{"a": ["x"], "b": 1}`},
		{name: "struct via json", value: struct {
			Name string `json:"name"`
			Dose int    `json:"dose"`
		}{Name: "Prozac", Dose: 20}, want: `{"dose": 20, "name": "Prozac"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Literal(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiteral_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "NaN", value: math.NaN()},
		{name: "Inf", value: math.Inf(1)},
		{name: "channel", value: make(chan int)},
		{name: "func", value: func() {}},
		{name: "int keyed map", value: map[int]string{1: "a"}},
		{name: "bad record ref", value: RecordRef{Table: "a b", Key: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Literal(tt.value)
			assert.Error(t, err)
		})
	}
}

func TestBuilder_Relate(t *testing.T) {
	t.Run("no payload", func(t *testing.T) {
		stmt, err := NewBuilder().Relate(RelateRequest{
			Source: "person:123", EdgeTable: "order", Destination: "product:456",
		})
		require.NoError(t, err)
		assert.Equal(t, "RELATE person:123 -> order:ulid() -> product:456", stmt.Text)
		assert.Nil(t, stmt.Vars)
	})

	t.Run("empty payload has no SET clause", func(t *testing.T) {
		stmt, err := NewBuilder().Relate(RelateRequest{
			Source: "person:123", EdgeTable: "order", Destination: "product:456",
			Payload: map[string]any{},
		})
		require.NoError(t, err)
		assert.Equal(t, "RELATE person:123 -> order:ulid() -> product:456", stmt.Text)
	})

	t.Run("bound payload", func(t *testing.T) {
		stmt, err := NewBuilder().Relate(RelateRequest{
			Source: "medication:warfarin", EdgeTable: "CONTRAINDICATED_FOR", Destination: "medication:ibuprofen",
			Payload: map[string]any{"reason": "bleeding risk", "severity": 3},
		})
		require.NoError(t, err)
		assert.Equal(t,
			"RELATE medication:warfarin -> CONTRAINDICATED_FOR:ulid() -> medication:ibuprofen SET reason = $v0, severity = $v1",
			stmt.Text)
		assert.Equal(t, map[string]any{"v0": "bleeding risk", "v1": 3}, stmt.Vars)
	})

	t.Run("inline payload", func(t *testing.T) {
		stmt, err := NewBuilder(WithValueMode(Inline)).Relate(RelateRequest{
			Source: "diagnosis:flu", EdgeTable: "HAS_SYMPTOM", Destination: "symptom:fatigue",
			Payload: map[string]any{"note": `say "hi"`, "weight": 0.5},
		})
		require.NoError(t, err)
		assert.Equal(t,
			`RELATE diagnosis:flu -> HAS_SYMPTOM:ulid() -> symptom:fatigue SET note = "say \"hi\"", weight = 0.5`,
			stmt.Text)
		assert.Nil(t, stmt.Vars)
	})

	t.Run("record ref values stay links", func(t *testing.T) {
		stmt, err := NewBuilder().Relate(RelateRequest{
			Source: "person:1", EdgeTable: "referred", Destination: "person:2",
			Payload: map[string]any{"by": RecordRef{Table: "doctor", Key: "7"}, "note": "x"},
		})
		require.NoError(t, err)
		assert.Equal(t, "RELATE person:1 -> referred:ulid() -> person:2 SET by = doctor:7, note = $v0", stmt.Text)
		assert.Equal(t, map[string]any{"v0": "x"}, stmt.Vars)
	})

	t.Run("payload base expression unchanged", func(t *testing.T) {
		b := NewBuilder()
		plain, err := b.Relate(RelateRequest{Source: "a:1", EdgeTable: "e", Destination: "b:2"})
		require.NoError(t, err)
		withPayload, err := b.Relate(RelateRequest{Source: "a:1", EdgeTable: "e", Destination: "b:2",
			Payload: map[string]any{"k": 1}})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(withPayload.Text, plain.Text+" SET "))
	})
}

func TestBuilder_RelateRejects(t *testing.T) {
	tests := []struct {
		name    string
		req     RelateRequest
		target  error
		wantMsg string
	}{
		{name: "bad source", req: RelateRequest{Source: "person", EdgeTable: "e", Destination: "b:1"},
			target: ErrInvalidReference, wantMsg: "invalid source"},
		{name: "bad destination", req: RelateRequest{Source: "a:1", EdgeTable: "e", Destination: "b:1:2"},
			target: ErrInvalidReference, wantMsg: "invalid destination"},
		{name: "bad edge table", req: RelateRequest{Source: "a:1", EdgeTable: "e-x", Destination: "b:1"},
			target: ErrInvalidReference, wantMsg: "invalid edge table"},
		{name: "reserved key", req: RelateRequest{Source: "a:1", EdgeTable: "e", Destination: "b:1",
			Payload: map[string]any{"in": "x"}}, target: ErrInvalidPayload, wantMsg: "reserved"},
		{name: "bad key", req: RelateRequest{Source: "a:1", EdgeTable: "e", Destination: "b:1",
			Payload: map[string]any{"a = 1, b": "x"}}, target: ErrInvalidPayload, wantMsg: "key contains"},
		{name: "unsupported value", req: RelateRequest{Source: "a:1", EdgeTable: "e", Destination: "b:1",
			Payload: map[string]any{"f": func() {}}}, target: ErrInvalidPayload, wantMsg: "unsupported"},
		{name: "escaped bracket reaching into payload", req: RelateRequest{Source: `a:⟨x\⟩`, EdgeTable: "e",
			Destination: `b:⟨y\⟩`, Payload: map[string]any{"note": "⟩ -> e:ulid() -> b:1; DELETE patient; --"}},
			target: ErrInvalidReference, wantMsg: "invalid source"},
	}

	for _, tt := range tests {
		for _, mode := range []ValueMode{Bind, Inline} {
			t.Run(tt.name+"/"+mode.String(), func(t *testing.T) {
				_, err := NewBuilder(WithValueMode(mode)).Relate(tt.req)
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.target)
				assert.Contains(t, err.Error(), tt.wantMsg)
			})
		}
	}
}

func TestBuilder_EdgeIDStrategies(t *testing.T) {
	req := RelateRequest{Source: "person:123", EdgeTable: "order", Destination: "product:456"}

	for gen, want := range map[StoreGenerated]string{
		StoreULID: "RELATE person:123 -> order:ulid() -> product:456",
		StoreUUID: "RELATE person:123 -> order:uuid() -> product:456",
		StoreRand: "RELATE person:123 -> order:rand() -> product:456",
	} {
		stmt, err := NewBuilder(WithEdgeIDs(gen)).Relate(req)
		require.NoError(t, err)
		assert.Equal(t, want, stmt.Text)
	}

	t.Run("client uuid is distinct per call", func(t *testing.T) {
		b := NewBuilder(WithEdgeIDs(ClientUUID{}))
		first, err := b.Relate(req)
		require.NoError(t, err)
		second, err := b.Relate(req)
		require.NoError(t, err)

		assert.NotEqual(t, first.Text, second.Text)
		assert.True(t, strings.HasPrefix(first.Text, "RELATE person:123 -> order:⟨"))
		assert.True(t, strings.HasSuffix(first.Text, "⟩ -> product:456"))
	})

	t.Run("client uuid failure", func(t *testing.T) {
		boom := errors.New("entropy exhausted")
		b := NewBuilder(WithEdgeIDs(ClientUUID{NewUUID: func() (uuid.UUID, error) { return uuid.Nil, boom }}))
		_, err := b.Relate(req)
		assert.ErrorIs(t, err, boom)
	})
}

func TestParseEdgeIDStrategy(t *testing.T) {
	tests := map[string]EdgeIDGenerator{
		"":       StoreULID,
		"ulid":   StoreULID,
		"UUID":   StoreUUID,
		"rand":   StoreRand,
		"client": ClientUUID{},
	}
	for in, want := range tests {
		got, err := ParseEdgeIDStrategy(in)
		require.NoError(t, err, in)
		assert.IsType(t, want, got, in)
		if sg, ok := want.(StoreGenerated); ok {
			assert.Equal(t, sg, got)
		}
	}

	_, err := ParseEdgeIDStrategy("snowflake")
	assert.Error(t, err)
}

func TestParseValueMode(t *testing.T) {
	m, err := ParseValueMode("")
	require.NoError(t, err)
	assert.Equal(t, Bind, m)

	m, err = ParseValueMode("Inline")
	require.NoError(t, err)
	assert.Equal(t, Inline, m)
	assert.Equal(t, "inline", m.String())

	_, err = ParseValueMode("raw")
	assert.Error(t, err)
}

func TestBuilder_Relations(t *testing.T) {
	b := NewBuilder()

	stmt, err := b.Relations("diagnosis:depression", "HAS_SYMPTOM", "symptom", Out)
	require.NoError(t, err)
	assert.Equal(t, "SELECT ->HAS_SYMPTOM->symptom FROM diagnosis:depression", stmt.Text)

	stmt, err = b.Relations("symptom:fatigue", "HAS_SYMPTOM", AnyTable, In)
	require.NoError(t, err)
	assert.Equal(t, "SELECT <-HAS_SYMPTOM<-? FROM symptom:fatigue", stmt.Text)

	_, err = b.Relations("symptom:fatigue", "HAS_SYMPTOM", "x y", Out)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = b.Relations("symptom:fatigue", "HAS_SYMPTOM", "symptom", Direction("<>"))
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestBuilder_Edges(t *testing.T) {
	stmt, err := NewBuilder().Edges("medication:warfarin", "CONTRAINDICATED_FOR", Out)
	require.NoError(t, err)
	assert.Equal(t, "SELECT ->CONTRAINDICATED_FOR.* FROM medication:warfarin", stmt.Text)

	_, err = NewBuilder().Edges("warfarin", "CONTRAINDICATED_FOR", Out)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestBuilder_Upsert(t *testing.T) {
	stmt, err := NewBuilder(WithValueMode(Inline)).Upsert("symptom:fatigue", map[string]any{"name": "Fatigue"})
	require.NoError(t, err)
	assert.Equal(t, `UPSERT symptom:fatigue SET name = "Fatigue"`, stmt.Text)

	_, err = NewBuilder().Upsert("symptom:fatigue", map[string]any{"id": "x"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&StoreError{Op: "query", Statement: "RELATE a:1 -> e:ulid() -> b:2", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStoreError(err))
	assert.Equal(t, "store query failed: connection reset", err.Error())
	assert.False(t, IsStoreError(cause))
}
