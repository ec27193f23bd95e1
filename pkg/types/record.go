// Package types provides the record, value and link types shared by the
// fetch, lookup and export layers.
package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Wire names of the embedded custom field and link lists.
const (
	CustomFieldsKey = "CUSTOMFIELDS"
	LinksKey        = "LINKS"

	fieldNameKey  = "FIELD_NAME"
	fieldValueKey = "FIELD_VALUE"
)

// Record is one object decoded from a CRM collection endpoint.
type Record map[string]any

// Value returns the tagged value of a top-level field.
func (r Record) Value(field string) Value {
	return ValueOf(r[field])
}

// Text returns a top-level field as text, "" when missing.
func (r Record) Text(field string) string {
	return r.Value(field).Text()
}

// ID returns a top-level identifier field normalized to a string.
func (r Record) ID(field string) string {
	return NormalizeID(r[field])
}

// Fields flattens the record's custom field list into a name to value
// mapping. Later entries with the same name win.
func (r Record) Fields() Fields {
	list, ok := r[CustomFieldsKey].([]any)
	if !ok {
		return Fields{}
	}

	fields := make(Fields, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, ok := entry[fieldNameKey].(string)
		if !ok || name == "" {
			continue
		}
		fields[name] = ValueOf(entry[fieldValueKey])
	}
	return fields
}

// Links returns the record's embedded link list.
func (r Record) Links() []Link {
	list, ok := r[LinksKey].([]any)
	if !ok {
		return nil
	}

	links := make([]Link, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		links = append(links, LinkFromRecord(Record(entry)))
	}
	return links
}

// Fields is a flattened custom field bag.
type Fields map[string]Value

// Get returns the named field, Absent when missing.
func (f Fields) Get(name string) Value {
	return f[name]
}

// Text returns the named field as text.
func (f Fields) Text(name string) string {
	return f[name].Text()
}

// ID returns the named field normalized as an identifier.
func (f Fields) ID(name string) string {
	return NormalizeID(f[name])
}

// NormalizeID renders an identifier as a string regardless of whether it
// arrived as a JSON number or a string. Integral floats lose their
// fractional part so 123.0 and "123" collide.
func NormalizeID(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return normalizeNumeric(string(x))
	case Value:
		if x.Kind() == KindNumber {
			return normalizeNumeric(x.Text())
		}
		return strings.TrimSpace(x.Text())
	case float64:
		return formatFloatID(x)
	case float32:
		return formatFloatID(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	default:
		return strings.TrimSpace(ValueOf(x).Text())
	}
}

func normalizeNumeric(text string) string {
	if _, err := strconv.ParseInt(text, 10, 64); err == nil {
		return text
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return formatFloatID(f)
	}
	return text
}

func formatFloatID(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
