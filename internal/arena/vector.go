package arena

import "encoding/json"

// Sequence is the read interface shared by the state containers.
type Sequence interface {
	Len() int
	At(i int) (any, error)
	Each(fn func(i int, v any) bool)
	Values() []any
}

// Vector is an ordered, mutable sequence that only stores values whose kind
// is in its allowed set. Every insertion path validates all incoming values
// before touching the contents, so a rejected call leaves the vector as it was.
//
// A scalar vector (nil, bool, numbers) is safe to hand out by value. A text
// vector may hold []byte; callers exposing those must copy them.
type Vector struct {
	name    string
	allowed KindSet
	items   []any
}

// NewVector returns an empty vector accepting the given kinds.
func NewVector(allowed KindSet) *Vector {
	return &Vector{name: vectorName(allowed), allowed: allowed}
}

// NewScalarVector returns an empty vector of nil, bool and numbers.
func NewScalarVector() *Vector { return NewVector(ScalarKinds) }

// NewTextVector returns an empty vector of scalars and text.
func NewTextVector() *Vector { return NewVector(TextKinds) }

// VectorOfSize returns a vector holding n copies of fill.
func VectorOfSize(allowed KindSet, n int, fill any) (*Vector, error) {
	v := NewVector(allowed)
	if err := v.validate(fill); err != nil {
		return nil, err
	}
	v.items = make([]any, n)
	for i := range v.items {
		v.items[i] = own(fill)
	}
	return v, nil
}

// VectorFromFunc returns a vector of n values produced by gen.
func VectorFromFunc(allowed KindSet, n int, gen func(i int) any) (*Vector, error) {
	items := make([]any, n)
	for i := range items {
		items[i] = gen(i)
	}
	v := NewVector(allowed)
	if err := v.validate(items...); err != nil {
		return nil, err
	}
	v.items = ownAll(items)
	return v, nil
}

// VectorFromSlice copies values into a new vector. Nested []any slices are
// flattened depth first.
func VectorFromSlice(allowed KindSet, values []any) (*Vector, error) {
	v := NewVector(allowed)
	flat := flatten(values)
	if err := v.validate(flat...); err != nil {
		return nil, err
	}
	v.items = ownAll(flat)
	return v, nil
}

// Clone returns an independent copy of the vector with the same allowed set.
func (v *Vector) Clone() *Vector {
	return &Vector{name: v.name, allowed: v.allowed, items: ownAll(v.items)}
}

// Allowed returns the vector's allowed kinds.
func (v *Vector) Allowed() KindSet { return v.allowed }

// Len returns the number of elements.
func (v *Vector) Len() int { return len(v.items) }

// At returns the element at i. Negative indexes count from the end.
func (v *Vector) At(i int) (any, error) {
	i, err := v.index(i)
	if err != nil {
		return nil, err
	}
	return v.items[i], nil
}

// Each calls fn for every element until fn returns false.
func (v *Vector) Each(fn func(i int, x any) bool) {
	for i, x := range v.items {
		if !fn(i, x) {
			return
		}
	}
}

// Values returns the elements in a fresh slice.
func (v *Vector) Values() []any {
	return append([]any(nil), v.items...)
}

// MarshalJSON encodes the vector as a JSON list. Byte slices become strings.
func (v *Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValues(v.items))
}

// Set assigns x to position i. Assigning one past the end appends.
func (v *Vector) Set(i int, x any) error {
	if err := v.validate(x); err != nil {
		return err
	}
	if i == len(v.items) {
		v.items = append(v.items, own(x))
		return nil
	}
	i, err := v.index(i)
	if err != nil {
		return err
	}
	v.items[i] = own(x)
	return nil
}

// SetRange replaces length elements starting at start with values. Nested
// []any values are flattened. The vector grows when the range runs past the end.
func (v *Vector) SetRange(start, length int, values ...any) error {
	flat := flatten(values)
	if err := v.validate(flat...); err != nil {
		return err
	}
	if start < 0 || start > len(v.items) || length < 0 {
		return indexOutOfRange(start, len(v.items))
	}
	end := min(start+length, len(v.items))
	tail := append([]any(nil), v.items[end:]...)
	v.items = append(append(v.items[:start], ownAll(flat)...), tail...)
	return nil
}

// Append adds values to the end.
func (v *Vector) Append(values ...any) error {
	if err := v.validate(values...); err != nil {
		return err
	}
	v.items = append(v.items, ownAll(values)...)
	return nil
}

// Insert places values before position i.
func (v *Vector) Insert(i int, values ...any) error {
	if err := v.validate(values...); err != nil {
		return err
	}
	if i < 0 || i > len(v.items) {
		return indexOutOfRange(i, len(v.items))
	}
	tail := append([]any(nil), v.items[i:]...)
	v.items = append(append(v.items[:i], ownAll(values)...), tail...)
	return nil
}

// Unshift places values at the front.
func (v *Vector) Unshift(values ...any) error {
	return v.Insert(0, values...)
}

// Fill assigns x to length positions starting at start, growing the vector
// when needed.
func (v *Vector) Fill(x any, start, length int) error {
	if err := v.validate(x); err != nil {
		return err
	}
	return v.fill(start, length, func(int) any { return x })
}

// FillFunc assigns gen(i) to length positions starting at start.
func (v *Vector) FillFunc(start, length int, gen func(i int) any) error {
	if start < 0 || length < 0 {
		return indexOutOfRange(start, len(v.items))
	}
	vals := make([]any, length)
	for j := range vals {
		vals[j] = gen(start + j)
	}
	if err := v.validate(vals...); err != nil {
		return err
	}
	return v.fill(start, length, func(i int) any { return vals[i-start] })
}

func (v *Vector) fill(start, length int, at func(i int) any) error {
	if start < 0 || length < 0 {
		return indexOutOfRange(start, len(v.items))
	}
	if end := start + length; end > len(v.items) {
		v.items = append(v.items, make([]any, end-len(v.items))...)
	}
	for i := start; i < start+length; i++ {
		v.items[i] = own(at(i))
	}
	return nil
}

// Replace swaps the whole contents for values (flattened).
func (v *Vector) Replace(values []any) error {
	flat := flatten(values)
	if err := v.validate(flat...); err != nil {
		return err
	}
	v.items = ownAll(flat)
	return nil
}

// Concat appends values (flattened).
func (v *Vector) Concat(values []any) error {
	flat := flatten(values)
	if err := v.validate(flat...); err != nil {
		return err
	}
	v.items = append(v.items, ownAll(flat)...)
	return nil
}

// ConcatVector appends the contents of other, which must fit this vector's set.
func (v *Vector) ConcatVector(other *Vector) error {
	return v.Concat(other.items)
}

// MapInPlace replaces every element with fn(element). All results are
// validated before any is stored.
func (v *Vector) MapInPlace(fn func(x any) any) error {
	out := make([]any, len(v.items))
	for i, x := range v.items {
		out[i] = fn(x)
	}
	if err := v.validate(out...); err != nil {
		return err
	}
	v.items = ownAll(out)
	return nil
}

// Truncate shortens the vector to n elements.
func (v *Vector) Truncate(n int) error {
	if n < 0 || n > len(v.items) {
		return indexOutOfRange(n, len(v.items))
	}
	clear(v.items[n:])
	v.items = v.items[:n]
	return nil
}

func (v *Vector) validate(values ...any) error {
	for _, x := range values {
		if !v.allowed.Has(KindOf(x)) {
			return typeViolation(v.name, v.allowed, x)
		}
	}
	return nil
}

func (v *Vector) index(i int) (int, error) {
	n := len(v.items)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, indexOutOfRange(i, n)
	}
	return i, nil
}

func vectorName(allowed KindSet) string {
	switch allowed {
	case ScalarKinds:
		return "Vector"
	case TextKinds:
		return "TextVector"
	}
	return "Vector" + allowed.String()
}

// own detaches a value from its caller before storage.
func own(x any) any {
	if b, ok := x.([]byte); ok {
		return append([]byte(nil), b...)
	}
	return x
}

func ownAll(values []any) []any {
	out := make([]any, len(values))
	for i, x := range values {
		out[i] = own(x)
	}
	return out
}

func flatten(values []any) []any {
	out := make([]any, 0, len(values))
	for _, x := range values {
		if nested, ok := x.([]any); ok {
			out = append(out, flatten(nested)...)
			continue
		}
		out = append(out, x)
	}
	return out
}
