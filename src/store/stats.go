package store

import (
	"bytes"
	"cmp"
	"math"

	"github.com/pingcap/errors"
)

// SimpleStats holds per-column min/max values (as binary rows) and null counts.
type SimpleStats struct {
	MinValues  []byte   `avro:"_MIN_VALUES"`
	MaxValues  []byte   `avro:"_MAX_VALUES"`
	NullCounts []*int64 `avro:"_NULL_COUNTS"`
}

var emptyRowBytes = func() []byte {
	b, err := serializeBinaryRow(Row{}, nil)
	if err != nil {
		panic(err)
	}
	return b
}()

func emptyStats() SimpleStats {
	return SimpleStats{MinValues: emptyRowBytes, MaxValues: emptyRowBytes, NullCounts: []*int64{}}
}

// Decode returns the min and max rows of the stats.
func (s SimpleStats) Decode(types []DataType) (minRow, maxRow Row, err error) {
	if minRow, err = deserializeBinaryRow(s.MinValues, types); err != nil {
		return nil, nil, errors.Annotate(err, "min values")
	}
	if maxRow, err = deserializeBinaryRow(s.MaxValues, types); err != nil {
		return nil, nil, errors.Annotate(err, "max values")
	}
	return minRow, maxRow, nil
}

type statsCollector struct {
	types []DataType
	min   Row
	max   Row
	nulls []int64
}

func newStatsCollector(types []DataType) *statsCollector {
	return &statsCollector{
		types: types,
		min:   make(Row, len(types)),
		max:   make(Row, len(types)),
		nulls: make([]int64, len(types)),
	}
}

func (c *statsCollector) collect(row Row) {
	for i, v := range row {
		if v == nil {
			c.nulls[i]++
			continue
		}
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			continue
		}
		if f, ok := v.(float32); ok && math.IsNaN(float64(f)) {
			continue
		}
		if c.min[i] == nil || compareValues(v, c.min[i]) < 0 {
			c.min[i] = v
		}
		if c.max[i] == nil || compareValues(v, c.max[i]) > 0 {
			c.max[i] = v
		}
	}
}

func (c *statsCollector) result() (SimpleStats, error) {
	minBytes, err := serializeBinaryRow(c.min, c.types)
	if err != nil {
		return SimpleStats{}, err
	}
	maxBytes, err := serializeBinaryRow(c.max, c.types)
	if err != nil {
		return SimpleStats{}, err
	}
	nulls := make([]*int64, len(c.nulls))
	for i := range c.nulls {
		n := c.nulls[i]
		nulls[i] = &n
	}
	return SimpleStats{MinValues: minBytes, MaxValues: maxBytes, NullCounts: nulls}, nil
}

// compareValues orders two non-null values of the same Go type.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case string:
		return cmp.Compare(x, b.(string))
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int8:
		return cmp.Compare(x, b.(int8))
	case int16:
		return cmp.Compare(x, b.(int16))
	case int32:
		return cmp.Compare(x, b.(int32))
	case int64:
		return cmp.Compare(x, b.(int64))
	case float32:
		return cmp.Compare(x, b.(float32))
	case float64:
		return cmp.Compare(x, b.(float64))
	default:
		return 0
	}
}
