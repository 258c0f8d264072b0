package surql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueMode selects how payload values reach the store.
type ValueMode int

const (
	// Bind passes values as query variables ($v0, $v1, ...).
	Bind ValueMode = iota
	// Inline renders values as escaped SurrealQL literals in the statement text.
	Inline
)

func (m ValueMode) String() string {
	switch m {
	case Bind:
		return "bind"
	case Inline:
		return "inline"
	}
	return "unknown"
}

// ParseValueMode maps a configuration string to a ValueMode. Empty means Bind.
func ParseValueMode(s string) (ValueMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bind", "params", "parameters":
		return Bind, nil
	case "inline", "literal", "literals":
		return Inline, nil
	}
	return Bind, fmt.Errorf("unknown payload mode %q (expected bind or inline)", s)
}

// Literal renders v as a SurrealQL literal.
//
// Supported: nil, strings, booleans, integers, finite floats, time.Time
// (as a d"..." datetime), RecordRef (rendered bare), json.Number, slices,
// arrays, maps with string keys, and structs (encoded through their JSON form).
// Pointers and interfaces are followed.
func Literal(v any) (string, error) {
	var sb strings.Builder
	if err := writeLiteral(&sb, reflect.ValueOf(v), 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

const maxLiteralDepth = 32

var marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

func writeLiteral(sb *strings.Builder, v reflect.Value, depth int) error {
	if depth > maxLiteralDepth {
		return fmt.Errorf("value nested deeper than %d levels", maxLiteralDepth)
	}
	if !v.IsValid() {
		sb.WriteString("NULL")
		return nil
	}

	// *time.Time and *RecordRef render like their values. Pointers stay only
	// when the marshaler is defined on the pointer receiver.
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			sb.WriteString("NULL")
			return nil
		}
		if v.Type().Implements(marshalerType) && !v.Elem().Type().Implements(marshalerType) {
			break
		}
		v = v.Elem()
	}

	switch t := v.Interface().(type) {
	case time.Time:
		sb.WriteString("d")
		sb.WriteString(quoteString(t.UTC().Format(time.RFC3339Nano)))
		return nil
	case RecordRef:
		if _, err := ParseRecordRef(t.String()); err != nil {
			return err
		}
		sb.WriteString(t.String())
		return nil
	case json.Number:
		if _, err := strconv.ParseFloat(string(t), 64); err != nil {
			return fmt.Errorf("malformed number %q", string(t))
		}
		sb.WriteString(string(t))
		return nil
	case json.Marshaler:
		if v.Kind() == reflect.Pointer && v.IsNil() {
			sb.WriteString("NULL")
			return nil
		}
		return writeViaJSON(sb, t, depth)
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			sb.WriteString("NULL")
			return nil
		}
		return writeLiteral(sb, v.Elem(), depth+1)
	case reflect.String:
		sb.WriteString(quoteString(v.String()))
	case reflect.Bool:
		sb.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sb.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite number %v", f)
		}
		s := strconv.FormatFloat(f, 'g', -1, v.Type().Bits())
		if !strings.ContainsAny(s, ".eE") {
			// keep floats distinguishable from integers
			s += ".0"
		}
		sb.WriteString(s)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			sb.WriteString("NULL")
			return nil
		}
		sb.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := writeLiteral(sb, v.Index(i), depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("map keys must be strings, got %s", v.Type().Key())
		}
		if v.IsNil() {
			sb.WriteString("NULL")
			return nil
		}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteString(k))
			sb.WriteString(": ")
			kv := reflect.ValueOf(k).Convert(v.Type().Key())
			if err := writeLiteral(sb, v.MapIndex(kv), depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case reflect.Struct:
		return writeViaJSON(sb, v.Interface(), depth)
	default:
		return fmt.Errorf("unsupported value of kind %s", v.Kind())
	}
	return nil
}

func writeViaJSON(sb *strings.Builder, v any, depth int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return writeLiteral(sb, reflect.ValueOf(generic), depth+1)
}

// quoteString produces a double-quoted SurrealQL string. Quotes, backslashes
// and control characters are escaped; other runes are kept verbatim.
func quoteString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string never fails.
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// checkBindable reports whether v can be shipped as a query variable. The set
// of accepted values matches Literal so both modes reject the same payloads.
func checkBindable(v any) error {
	var sb strings.Builder
	return writeLiteral(&sb, reflect.ValueOf(v), 0)
}
