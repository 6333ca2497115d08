package arena

import (
	"strings"
)

// Kind classifies a value stored in a state container.
type Kind uint8

const (
	// KindForeign is any value the containers do not know how to store.
	KindForeign Kind = iota
	KindNil
	KindBool
	KindNumber
	// KindText covers string and []byte. Go strings are immutable and are
	// handed out as-is; byte slices are mutable and are always copied.
	KindText
	KindSafeArray
)

var kindNames = [...]string{
	KindForeign:   "foreign",
	KindNil:       "nil",
	KindBool:      "bool",
	KindNumber:    "number",
	KindText:      "text",
	KindSafeArray: "safe array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindSet is a bitmask of allowed kinds.
type KindSet uint8

// Standard allowed sets.
const (
	ScalarKinds    = KindSet(1<<KindNil | 1<<KindBool | 1<<KindNumber)
	TextKinds      = ScalarKinds | KindSet(1<<KindText)
	SafeArrayKinds = TextKinds | KindSet(1<<KindSafeArray)
)

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	return k != KindForeign && s&(1<<k) != 0
}

func (s KindSet) String() string {
	var names []string
	for k := KindNil; k <= KindSafeArray; k++ {
		if s.Has(k) {
			names = append(names, k.String())
		}
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// KindOf classifies v.
func KindOf(v any) Kind {
	switch x := v.(type) {
	case nil:
		return KindNil
	case bool:
		return KindBool
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64:
		return KindNumber
	case string, []byte:
		return KindText
	case *SafeArray:
		if x == nil {
			return KindForeign
		}
		return KindSafeArray
	default:
		return KindForeign
	}
}

// immutable reports whether v can be handed out without copying.
func immutable(v any) bool {
	switch KindOf(v) {
	case KindNil, KindBool, KindNumber:
		return true
	case KindText:
		_, ok := v.(string)
		return ok
	}
	return false
}

// expose returns v, or a copy of it when v is mutable.
func expose(v any) any {
	switch x := v.(type) {
	case []byte:
		return append([]byte(nil), x...)
	case *SafeArray:
		return x.Clone()
	}
	return v
}
