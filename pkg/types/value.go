package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "absent"
	}
}

// Value is a tagged scalar taken from a record or a custom field bag.
// Numbers keep their wire text so identifiers never lose precision.
type Value struct {
	kind Kind
	text string
	b    bool
}

// Absent is the zero Value.
var Absent = Value{}

// StringValue returns a string Value.
func StringValue(s string) Value {
	return Value{kind: KindString, text: s}
}

// NumberValue returns a number Value from its decimal text.
func NumberValue(text string) Value {
	return Value{kind: KindNumber, text: text}
}

// BoolValue returns a bool Value.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// ValueOf converts a decoded JSON value into a Value. Nested objects and
// arrays are kept as their JSON text.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Absent
	case Value:
		return x
	case string:
		return StringValue(x)
	case json.Number:
		return NumberValue(string(x))
	case float64:
		return NumberValue(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return NumberValue(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case int:
		return NumberValue(strconv.Itoa(x))
	case int64:
		return NumberValue(strconv.FormatInt(x, 10))
	case int32:
		return NumberValue(strconv.FormatInt(int64(x), 10))
	case uint64:
		return NumberValue(strconv.FormatUint(x, 10))
	case bool:
		return BoolValue(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return StringValue(fmt.Sprint(x))
		}
		return StringValue(string(data))
	}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value was missing or null.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Text returns the value as text: "" when absent, "true"/"false" for
// booleans, the wire text for numbers.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Text() }

// Bool returns the boolean reading of the value. Strings are parsed
// leniently, numbers are true when non-zero.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		f, err := strconv.ParseFloat(v.text, 64)
		return err == nil && f != 0
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.text))
		return err == nil && b
	default:
		return false
	}
}

// Float returns the numeric reading of the value.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber, KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Display returns a spreadsheet-ready scalar: string, int64, float64,
// bool, or "" when absent.
func (v Value) Display() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindNumber:
		if i, err := strconv.ParseInt(v.text, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v.text, 64); err == nil {
			return f
		}
		return v.text
	case KindBool:
		return v.b
	default:
		return ""
	}
}

// Or returns the display form of v, or def when v is absent.
func (v Value) Or(def any) any {
	if v.IsAbsent() {
		return def
	}
	return v.Display()
}
