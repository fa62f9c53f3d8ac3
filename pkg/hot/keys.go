package hot

import (
	"encoding/binary"
	"errors"
	"math"

	"stratadb/pkg/errs"
)

// NameKeySerializer returns the byte key a NameIndex entry is stored
// under: the interned name kind tag, then the QNm's prefix and local name
// (spec §4.4.1), split on name's first ':' the way an XML QName splits,
// separated by a NUL byte. NUL sorts before every other byte, so the
// encoding stays order-preserving: two names with the same prefix sort by
// local name, and an unprefixed name (empty prefix) sorts before any
// prefixed one sharing its local name.
func NameKeySerializer(kind byte, name []byte) []byte {
	prefix, local := splitQName(name)
	out := make([]byte, 0, 1+len(prefix)+1+len(local))
	out = append(out, kind)
	out = append(out, prefix...)
	out = append(out, 0x00)
	out = append(out, local...)
	return out
}

// NameKeyDeserialize inverts NameKeySerializer.
func NameKeyDeserialize(data []byte) (kind byte, prefix, local []byte, err error) {
	if len(data) < 1 {
		return 0, nil, nil, errs.WrapCorruption(errShortKey)
	}
	kind = data[0]
	rest := data[1:]
	sep := -1
	for i, b := range rest {
		if b == 0x00 {
			sep = i
			break
		}
	}
	if sep < 0 {
		return 0, nil, nil, errs.WrapCorruption(errMissingSeparator)
	}
	prefix = append([]byte(nil), rest[:sep]...)
	local = append([]byte(nil), rest[sep+1:]...)
	return kind, prefix, local, nil
}

func splitQName(name []byte) (prefix, local []byte) {
	for i, b := range name {
		if b == ':' {
			return name[:i], name[i+1:]
		}
	}
	return nil, name
}

// PathKeySerializer returns the byte key a PathIndex entry is stored
// under: pathNodeKey's big-endian encoding with its sign bit flipped
// (spec §4.4.1's "long key" rule), so that signed ordering maps onto
// unsigned byte ordering the trie compares directly.
func PathKeySerializer(pathNodeKey int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(pathNodeKey)^signBit64)
	return out
}

// PathKeyDeserialize inverts PathKeySerializer.
func PathKeyDeserialize(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, errs.WrapCorruption(errShortKey)
	}
	return int64(binary.BigEndian.Uint64(data) ^ signBit64), nil
}

const signBit64 = uint64(1) << 63

// CASValueKind tags which typed CAS value (spec's "CAS (typed values)"
// index — content-and-structure, not a content hash) a CASIndex key
// encodes, so values of different Go kinds never alias under byte
// comparison.
type CASValueKind byte

const (
	CASBoolean CASValueKind = iota + 1
	CASInteger
	CASFloat
	CASString
)

// CASKeySerializer returns the byte key a CASIndex entry is stored under:
// a one-byte kind tag followed by value's order-preserving encoding (spec
// §4.4.1), so a Range scan over one kind visits values in their natural
// order.
func CASKeySerializer(value any) ([]byte, error) {
	switch v := value.(type) {
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		return []byte{byte(CASBoolean), b}, nil
	case int64:
		out := make([]byte, 9)
		out[0] = byte(CASInteger)
		binary.BigEndian.PutUint64(out[1:], uint64(v)^signBit64)
		return out, nil
	case float64:
		out := make([]byte, 9)
		out[0] = byte(CASFloat)
		binary.BigEndian.PutUint64(out[1:], orderPreservingFloatBits(v))
		return out, nil
	case string:
		out := make([]byte, 1+len(v))
		out[0] = byte(CASString)
		copy(out[1:], v)
		return out, nil
	default:
		return nil, errs.Usagef("cas index: unsupported value type %T", value)
	}
}

// CASKeyDeserialize inverts CASKeySerializer.
func CASKeyDeserialize(data []byte) (any, error) {
	if len(data) < 1 {
		return nil, errs.WrapCorruption(errShortKey)
	}
	switch CASValueKind(data[0]) {
	case CASBoolean:
		if len(data) != 2 {
			return nil, errs.WrapCorruption(errShortKey)
		}
		return data[1] != 0, nil
	case CASInteger:
		if len(data) != 9 {
			return nil, errs.WrapCorruption(errShortKey)
		}
		return int64(binary.BigEndian.Uint64(data[1:]) ^ signBit64), nil
	case CASFloat:
		if len(data) != 9 {
			return nil, errs.WrapCorruption(errShortKey)
		}
		return orderPreservingFloatValue(binary.BigEndian.Uint64(data[1:])), nil
	case CASString:
		return string(data[1:]), nil
	default:
		return nil, errs.WrapCorruption(errUnknownCASKind)
	}
}

// orderPreservingFloatBits maps a float64's IEEE-754 bit pattern so that
// unsigned comparison of the result matches the float's natural order:
// for non-negative floats, set the sign bit (they were already ordered
// correctly relative to each other, but must sort above negatives);
// for negative floats, flip every bit (reverses their order, since more
// negative floats have a numerically larger raw bit pattern).
func orderPreservingFloatBits(f float64) uint64 {
	bits64 := math.Float64bits(f)
	if bits64&signBit64 != 0 {
		return ^bits64
	}
	return bits64 | signBit64
}

func orderPreservingFloatValue(encoded uint64) float64 {
	if encoded&signBit64 != 0 {
		return math.Float64frombits(encoded &^ signBit64)
	}
	return math.Float64frombits(^encoded)
}

var errShortKey = errShortNode
var errMissingSeparator = errors.New("hot: name key missing prefix/local separator")
var errUnknownCASKind = errors.New("hot: unknown cas value kind")
