package store

import (
	"encoding/binary"
	"math"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/pkg/util/hack"
)

// Binary rows are the compact row encoding used for partition values and
// statistics inside manifests. Layout: a null bit set whose first byte holds the
// row kind, one little-endian 8 byte slot per field, then a variable-length
// region for strings and bytes longer than 7 bytes.

const binaryRowHeaderBits = 8

func nullBitsSizeInBytes(arity int) int {
	return ((arity + 63 + binaryRowHeaderBits) / 64) * 8
}

// EncodeBinaryRow encodes row according to types.
func EncodeBinaryRow(row Row, types []DataType) ([]byte, error) {
	if len(row) != len(types) {
		return nil, errors.Errorf("row has %d fields, type has %d", len(row), len(types))
	}
	nullBits := nullBitsSizeInBytes(len(types))
	fixed := nullBits + 8*len(types)
	buf := make([]byte, fixed, fixed+16*len(types))

	for i, t := range types {
		slot := nullBits + 8*i
		v := row[i]
		if v == nil {
			bit := i + binaryRowHeaderBits
			buf[bit>>3] |= 1 << (bit & 7)
			continue
		}
		var err error
		buf, err = putBinaryRowField(buf, slot, t, v)
		if err != nil {
			return nil, errors.Annotatef(err, "field %d", i)
		}
	}
	return buf, nil
}

func putBinaryRowField(buf []byte, slot int, t DataType, v any) ([]byte, error) {
	le := binary.LittleEndian
	switch t.Root {
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		if b {
			buf[slot] = 1
		}
	case Tinyint:
		n, ok := v.(int8)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		buf[slot] = byte(n)
	case Smallint:
		n, ok := v.(int16)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		le.PutUint16(buf[slot:], uint16(n))
	case Integer, Date:
		n, ok := v.(int32)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		le.PutUint32(buf[slot:], uint32(n))
	case Bigint:
		n, ok := v.(int64)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		le.PutUint64(buf[slot:], uint64(n))
	case Float:
		f, ok := v.(float32)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		le.PutUint32(buf[slot:], math.Float32bits(f))
	case Double:
		f, ok := v.(float64)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		le.PutUint64(buf[slot:], math.Float64bits(f))
	case Char, Varchar:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return putBinaryRowBytes(buf, slot, hack.Slice(s)), nil
	case Binary, Varbinary:
		b, ok := v.([]byte)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return putBinaryRowBytes(buf, slot, b), nil
	default:
		return nil, errors.Annotatef(ErrUnsupported, "binary row field of type %s", t)
	}
	return buf, nil
}

func putBinaryRowBytes(buf []byte, slot int, data []byte) []byte {
	if len(data) <= 7 {
		// Short values live in the slot itself, the highest byte carries a mark bit and the length.
		copy(buf[slot:slot+7], data)
		buf[slot+7] = byte(len(data)) | 0x80
		return buf
	}
	offset := len(buf)
	words := (len(data) + 7) / 8
	buf = append(buf, make([]byte, words*8)...)
	copy(buf[offset:], data)
	binary.LittleEndian.PutUint64(buf[slot:], uint64(offset)<<32|uint64(len(data)))
	return buf
}

// DecodeBinaryRow is the inverse of EncodeBinaryRow.
func DecodeBinaryRow(data []byte, types []DataType) (Row, error) {
	nullBits := nullBitsSizeInBytes(len(types))
	if len(data) < nullBits+8*len(types) {
		return nil, errors.Errorf("binary row of %d bytes is too short for %d fields", len(data), len(types))
	}
	le := binary.LittleEndian
	row := make(Row, len(types))
	for i, t := range types {
		bit := i + binaryRowHeaderBits
		if data[bit>>3]&(1<<(bit&7)) != 0 {
			continue
		}
		slot := nullBits + 8*i
		switch t.Root {
		case Boolean:
			row[i] = data[slot] != 0
		case Tinyint:
			row[i] = int8(data[slot])
		case Smallint:
			row[i] = int16(le.Uint16(data[slot:]))
		case Integer, Date:
			row[i] = int32(le.Uint32(data[slot:]))
		case Bigint:
			row[i] = int64(le.Uint64(data[slot:]))
		case Float:
			row[i] = math.Float32frombits(le.Uint32(data[slot:]))
		case Double:
			row[i] = math.Float64frombits(le.Uint64(data[slot:]))
		case Char, Varchar, Binary, Varbinary:
			b, err := binaryRowBytes(data, slot)
			if err != nil {
				return nil, errors.Annotatef(err, "field %d", i)
			}
			if t.IsString() {
				row[i] = string(b)
			} else {
				row[i] = append([]byte(nil), b...)
			}
		default:
			return nil, errors.Annotatef(ErrUnsupported, "binary row field of type %s", t)
		}
	}
	return row, nil
}

func binaryRowBytes(data []byte, slot int) ([]byte, error) {
	if data[slot+7]&0x80 != 0 {
		n := int(data[slot+7] & 0x7f)
		return data[slot : slot+n], nil
	}
	v := binary.LittleEndian.Uint64(data[slot:])
	offset, n := int(v>>32), int(uint32(v))
	if offset+n > len(data) {
		return nil, errors.Errorf("variable part [%d, %d) out of range %d", offset, offset+n, len(data))
	}
	return data[offset : offset+n], nil
}

// serializeBinaryRow prefixes the row with its arity, which is the form stored in manifests.
func serializeBinaryRow(row Row, types []DataType) ([]byte, error) {
	data, err := EncodeBinaryRow(row, types)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(types)))
	copy(out[4:], data)
	return out, nil
}

func deserializeBinaryRow(data []byte, types []DataType) (Row, error) {
	if len(data) < 4 {
		return nil, errors.Errorf("serialized binary row of %d bytes", len(data))
	}
	if arity := int(binary.BigEndian.Uint32(data)); arity != len(types) {
		return nil, errors.Errorf("serialized binary row has arity %d, want %d", arity, len(types))
	}
	return DecodeBinaryRow(data[4:], types)
}

func typeMismatch(t DataType, v any) error {
	return errors.Errorf("value %v (%T) does not match type %s", v, v, t)
}
