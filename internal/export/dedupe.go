package export

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/spaolacci/murmur3"
)

// Row is one output row keyed by column name.
type Row map[string]any

type digest struct{ h1, h2 uint64 }

// Dedupe drops rows equal to an earlier row, keeping first occurrences in
// order. Equality compares column names and values, not iteration order.
// Rows are bucketed by a 128-bit digest and compared in full within a
// bucket.
func Dedupe(rows []Row) []Row {
	if len(rows) < 2 {
		return rows
	}

	buckets := make(map[digest][]int, len(rows))
	out := make([]Row, 0, len(rows))
	var buf []byte

	for _, row := range rows {
		buf = appendCanonical(buf[:0], row)
		h1, h2 := murmur3.Sum128(buf)
		key := digest{h1, h2}

		dup := false
		for _, idx := range buckets[key] {
			if rowsEqual(out[idx], row) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		buckets[key] = append(buckets[key], len(out))
		out = append(out, row)
	}
	return out
}

// appendCanonical encodes row with sorted keys and type-tagged values.
func appendCanonical(buf []byte, row Row) []byte {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		buf = appendField(buf, 'k', k)
		buf = appendValue(buf, row[k])
	}
	return buf
}

func appendValue(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(buf, 'n')
	case string:
		return appendField(buf, 's', x)
	case bool:
		if x {
			return append(buf, 't')
		}
		return append(buf, 'f')
	case int64:
		return appendField(buf, 'i', strconv.FormatInt(x, 10))
	case int:
		return appendField(buf, 'i', strconv.Itoa(x))
	case float64:
		buf = append(buf, 'd')
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
	default:
		return appendField(buf, 'x', fmt.Sprintf("%T:%v", v, v))
	}
}

func appendField(buf []byte, tag byte, s string) []byte {
	buf = append(buf, tag)
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func rowsEqual(a, b Row) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && math.Float64bits(x) == math.Float64bits(y)
	case nil, string, bool, int64, int:
		return a == b
	default:
		return fmt.Sprintf("%T:%v", x, x) == fmt.Sprintf("%T:%v", b, b)
	}
}
