package cmd

type missing struct{}

func (missing) String() string { return "<missing>" }

// Missing marks an argument slot for which no value was supplied. It is
// distinct from nil and from zero values.
var Missing any = missing{}

// Args holds resolved arguments aligned with a command's parameters.
type Args struct {
	params []*Parameter
	values []any
}

// NewArgs pairs params with values. Absent trailing values are Missing.
func NewArgs(params []*Parameter, values []any) Args {
	vals := make([]any, len(params))
	for i := range vals {
		if i < len(values) {
			vals[i] = values[i]
		} else {
			vals[i] = Missing
		}
	}
	return Args{params: params, values: vals}
}

// Len returns the number of slots.
func (a Args) Len() int { return len(a.values) }

// At returns the value at position i, or Missing when out of range.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a.values) {
		return Missing
	}
	return a.values[i]
}

// Lookup returns the value bound to the named parameter.
func (a Args) Lookup(name string) (any, bool) {
	for i, p := range a.params {
		if p.Name == name {
			return a.values[i], true
		}
	}
	return nil, false
}

// IsMissing reports whether the named parameter received no value.
func (a Args) IsMissing(name string) bool {
	v, ok := a.Lookup(name)
	return !ok || v == Missing
}

// Values returns a copy of the resolved values.
func (a Args) Values() []any {
	out := make([]any, len(a.values))
	copy(out, a.values)
	return out
}

// Arg returns the named argument as T. ok is false when the value is
// Missing, nil or of a different type.
func Arg[T any](a Args, name string) (T, bool) {
	var zero T
	v, found := a.Lookup(name)
	if !found || v == Missing || v == nil {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// ArgOr returns the named argument as T. When the value is Missing the
// parameter's declared default is used, then fallback.
func ArgOr[T any](a Args, name string, fallback T) T {
	if t, ok := Arg[T](a, name); ok {
		return t
	}
	for _, p := range a.params {
		if p.Name == name && p.HasDefault {
			if d, ok := p.Default.(T); ok {
				return d
			}
		}
	}
	return fallback
}
