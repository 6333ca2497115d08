package arena

import (
	"encoding/json"
	"reflect"
	"slices"

	"github.com/pkg/errors"
)

const safeArrayName = "SafeArray"

// SafeArray is a sequence that never hands out a reference into its
// contents. It holds scalars, text and nested SafeArrays. Reads return
// scalars and strings as-is, and fresh copies of byte slices and nested
// arrays. Writes convert foreign slices into fresh SafeArrays, so nothing
// outside the array ever shares identity with what it stores.
//
// Operations that are built from other operations on the same array copy
// their result once, when the outermost call returns; depth tracks this per
// instance. A SafeArray is not safe for concurrent use.
type SafeArray struct {
	box   *Vector
	depth int
}

// NewSafeArray returns an empty SafeArray.
func NewSafeArray() *SafeArray {
	return &SafeArray{box: NewVector(SafeArrayKinds)}
}

// SafeArrayOf builds a SafeArray from values. Nested slices become nested
// SafeArrays instead of being flattened.
func SafeArrayOf(values ...any) (*SafeArray, error) {
	s := NewSafeArray()
	if err := s.Append(values...); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSafeArray is SafeArrayOf for literals known to be valid.
func MustSafeArray(values ...any) *SafeArray {
	s, err := SafeArrayOf(values...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *SafeArray) enter() { s.depth++ }
func (s *SafeArray) leave() { s.depth-- }

// out copies v unless a call on this array is still in progress.
func (s *SafeArray) out(v any) any {
	if s.depth > 1 {
		return v
	}
	return expose(v)
}

// call runs a caller-supplied callback with the depth counter suspended, so
// accessors invoked from inside the callback copy their own results.
func (s *SafeArray) call(fn func()) {
	saved := s.depth
	s.depth = 0
	defer func() { s.depth = saved }()
	fn()
}

// keep converts v into a form the array may store.
func (s *SafeArray) keep(v any) (any, error) {
	switch x := v.(type) {
	case *SafeArray:
		if x == nil {
			break
		}
		return x.Clone(), nil
	case []byte:
		return append([]byte(nil), x...), nil
	}
	switch KindOf(v) {
	case KindNil, KindBool, KindNumber, KindText:
		return v, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		nested := NewSafeArray()
		for i := 0; i < rv.Len(); i++ {
			kept, err := nested.keep(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			nested.box.items = append(nested.box.items, kept)
		}
		return nested, nil
	}
	return nil, typeViolation(safeArrayName, SafeArrayKinds, v)
}

func (s *SafeArray) keepAll(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		kept, err := s.keep(v)
		if err != nil {
			return nil, err
		}
		out[i] = kept
	}
	return out, nil
}

// Clone returns a deep copy.
func (s *SafeArray) Clone() *SafeArray {
	c := NewSafeArray()
	c.box.items = make([]any, len(s.box.items))
	for i, v := range s.box.items {
		c.box.items[i] = expose(v)
	}
	return c
}

// Len returns the number of elements.
func (s *SafeArray) Len() int { return s.box.Len() }

// At returns the element at i, copied if mutable.
func (s *SafeArray) At(i int) (any, error) {
	s.enter()
	defer s.leave()
	v, err := s.box.At(i)
	if err != nil {
		return nil, err
	}
	return s.out(v), nil
}

// Each calls fn with a copy of every element until fn returns false. The
// array itself is iterated live and never copied.
func (s *SafeArray) Each(fn func(i int, v any) bool) {
	s.enter()
	defer s.leave()
	for i := 0; i < s.box.Len(); i++ {
		v := expose(s.box.items[i])
		cont := true
		s.call(func() { cont = fn(i, v) })
		if !cont {
			return
		}
	}
}

// ReverseEach is Each from the last element to the first.
func (s *SafeArray) ReverseEach(fn func(i int, v any) bool) {
	s.enter()
	defer s.leave()
	for i := s.box.Len() - 1; i >= 0; i-- {
		if i >= s.box.Len() {
			continue
		}
		v := expose(s.box.items[i])
		cont := true
		s.call(func() { cont = fn(i, v) })
		if !cont {
			return
		}
	}
}

// Values returns copies of all elements in a fresh slice.
func (s *SafeArray) Values() []any {
	s.enter()
	defer s.leave()
	out := make([]any, len(s.box.items))
	for i, v := range s.box.items {
		out[i] = s.out(v)
	}
	return out
}

// Slice returns a new SafeArray holding copies of elements [start, end).
func (s *SafeArray) Slice(start, end int) (*SafeArray, error) {
	s.enter()
	defer s.leave()
	n := s.box.Len()
	if start < 0 || end > n || start > end {
		return nil, indexOutOfRange(start, n)
	}
	res := NewSafeArray()
	for _, v := range s.Values()[start:end] {
		res.box.items = append(res.box.items, expose(v))
	}
	return res, nil
}

// Sort returns a sorted copy. less receives copies of the elements.
func (s *SafeArray) Sort(less func(a, b any) bool) *SafeArray {
	s.enter()
	defer s.leave()
	vals := s.Values()
	s.call(func() {
		slices.SortStableFunc(vals, func(a, b any) int {
			return compareWith(less, expose(a), expose(b))
		})
	})
	res := NewSafeArray()
	for _, v := range vals {
		res.box.items = append(res.box.items, expose(v))
	}
	return res
}

// SortInPlace sorts the array's own contents.
func (s *SafeArray) SortInPlace(less func(a, b any) bool) {
	s.enter()
	defer s.leave()
	items := s.box.items
	s.call(func() {
		slices.SortStableFunc(items, func(a, b any) int {
			return compareWith(less, expose(a), expose(b))
		})
	})
}

func compareWith(less func(a, b any) bool, a, b any) int {
	switch {
	case less(a, b):
		return -1
	case less(b, a):
		return 1
	}
	return 0
}

// Flatten returns every non-array element, depth first, as copies.
func (s *SafeArray) Flatten() []any {
	s.enter()
	defer s.leave()
	var out []any
	for _, v := range s.Values() {
		if nested, ok := v.(*SafeArray); ok {
			out = append(out, nested.flattenRaw()...)
			continue
		}
		out = append(out, v)
	}
	for i, v := range out {
		out[i] = s.out(v)
	}
	return out
}

func (s *SafeArray) flattenRaw() []any {
	var out []any
	for _, v := range s.box.items {
		if nested, ok := v.(*SafeArray); ok {
			out = append(out, nested.flattenRaw()...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// Index returns the position of the first element equal to v, or -1.
func (s *SafeArray) Index(v any) int {
	for i, x := range s.box.items {
		if equalValues(x, v) {
			return i
		}
	}
	return -1
}

// Equal reports whether both arrays hold equal elements in the same order.
func (s *SafeArray) Equal(other *SafeArray) bool {
	if other == nil || s.Len() != other.Len() {
		return false
	}
	for i, x := range s.box.items {
		if !equalValues(x, other.box.items[i]) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	switch x := a.(type) {
	case *SafeArray:
		y, ok := b.(*SafeArray)
		return ok && x.Equal(y)
	case []byte:
		switch y := b.(type) {
		case []byte:
			return string(x) == string(y)
		case string:
			return string(x) == y
		}
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

// Set stores v at position i.
func (s *SafeArray) Set(i int, v any) error {
	s.enter()
	defer s.leave()
	kept, err := s.keep(v)
	if err != nil {
		return err
	}
	return s.box.Set(i, kept)
}

// Append adds values to the end.
func (s *SafeArray) Append(values ...any) error {
	s.enter()
	defer s.leave()
	kept, err := s.keepAll(values)
	if err != nil {
		return err
	}
	return s.box.Append(kept...)
}

// Insert places values before position i.
func (s *SafeArray) Insert(i int, values ...any) error {
	s.enter()
	defer s.leave()
	kept, err := s.keepAll(values)
	if err != nil {
		return err
	}
	return s.box.Insert(i, kept...)
}

// Fill stores copies of v in length positions starting at start.
func (s *SafeArray) Fill(v any, start, length int) error {
	s.enter()
	defer s.leave()
	kept, err := s.keep(v)
	if err != nil {
		return err
	}
	return s.box.FillFunc(start, length, func(int) any { return expose(kept) })
}

// Concat appends the elements of other, which may be a SafeArray or any
// foreign slice. Nested slices are kept nested.
func (s *SafeArray) Concat(other any) error {
	s.enter()
	defer s.leave()
	vals, err := s.elementsOf(other)
	if err != nil {
		return err
	}
	return s.box.Append(vals...)
}

// Replace swaps the whole contents for the elements of other.
func (s *SafeArray) Replace(other any) error {
	s.enter()
	defer s.leave()
	vals, err := s.elementsOf(other)
	if err != nil {
		return err
	}
	s.box.items = vals
	return nil
}

func (s *SafeArray) elementsOf(other any) ([]any, error) {
	if sa, ok := other.(*SafeArray); ok && sa != nil {
		return sa.Clone().box.items, nil
	}
	rv := reflect.ValueOf(other)
	if other == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, typeViolation(safeArrayName, SafeArrayKinds, other)
	}
	vals := make([]any, rv.Len())
	for i := range vals {
		kept, err := s.keep(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		vals[i] = kept
	}
	return vals, nil
}

// MapInPlace replaces each element with fn(copy of element). All results
// are converted before any is stored. Elements fn appends are kept, unmapped.
func (s *SafeArray) MapInPlace(fn func(v any) any) error {
	s.enter()
	defer s.leave()
	n := s.box.Len()
	out := make([]any, n)
	for i, v := range s.box.items[:n] {
		c := expose(v)
		s.call(func() { out[i] = fn(c) })
	}
	kept, err := s.keepAll(out)
	if err != nil {
		return err
	}
	s.box.items = append(kept, appended(s.box.items, n)...)
	return nil
}

// appended returns what callbacks added past the first n items.
func appended(items []any, n int) []any {
	if len(items) <= n {
		return nil
	}
	return items[n:]
}

// DeleteIf removes every element for which pred(copy) is true and returns
// the number removed. Elements pred appends are kept.
func (s *SafeArray) DeleteIf(pred func(v any) bool) int {
	s.enter()
	defer s.leave()
	n := s.box.Len()
	kept := s.box.items[:0:0]
	for _, v := range s.box.items[:n] {
		c := expose(v)
		drop := false
		s.call(func() { drop = pred(c) })
		if !drop {
			kept = append(kept, v)
		}
	}
	removed := n - len(kept)
	s.box.items = append(kept, appended(s.box.items, n)...)
	return removed
}

// MarshalJSON encodes the array as a JSON list. Byte slices become strings.
func (s *SafeArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValues(s.box.items))
}

func jsonValues(items []any) []any {
	vals := make([]any, len(items))
	for i, v := range items {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
			continue
		}
		vals[i] = v
	}
	return vals
}

// UnmarshalJSON decodes a JSON list. Objects are rejected.
func (s *SafeArray) UnmarshalJSON(data []byte) error {
	var vals []any
	if err := json.Unmarshal(data, &vals); err != nil {
		return errors.Wrap(err, "decode safe array")
	}
	if s.box == nil {
		s.box = NewVector(SafeArrayKinds)
	}
	kept, err := s.keepAll(vals)
	if err != nil {
		return err
	}
	s.box.items = kept
	return nil
}
