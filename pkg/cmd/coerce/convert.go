package coerce

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

var (
	ErrConversion = errors.New("conversion failed")
	ErrFormat     = errors.New("input was not in the correct format")
	ErrMissing    = errors.New("missing required value")
	ErrTimeout    = errors.New("argument resolution timed out")
	errOverflow   = errors.New("value out of range")
	errFraction   = errors.New("value is not integral")
)

// ParseError reports a parameter that could not be coerced.
type ParseError struct {
	Parameter string
	Input     string
	Reason    string
	Err       error
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("parameter %q: %s", e.Parameter, e.Reason)
	}
	return fmt.Sprintf("parameter %q: %s (input %q)", e.Parameter, e.Reason, e.Input)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConvertFunc converts a raw runtime value into a declared type.
type ConvertFunc func(raw any) (any, error)

type conversionKey struct {
	from, to reflect.Type
}

func (c *Chain) conversion(from, to reflect.Type) (ConvertFunc, bool) {
	if fn, ok := c.conversions[conversionKey{from, to}]; ok {
		return fn, true
	}
	if to.Kind() != reflect.Pointer {
		return nil, false
	}
	fn, ok := c.conversions[conversionKey{from, to.Elem()}]
	if !ok {
		return nil, false
	}
	return func(raw any) (any, error) {
		v, err := fn(raw)
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(to.Elem())
		ptr.Elem().Set(reflect.ValueOf(v))
		return ptr.Interface(), nil
	}, true
}

// defaultConversions covers what structured payloads deliver: integers as
// int64 and numbers as float64.
func defaultConversions() map[conversionKey]ConvertFunc {
	i64 := reflect.TypeFor[int64]()
	f64 := reflect.TypeFor[float64]()

	m := map[conversionKey]ConvertFunc{
		{i64, reflect.TypeFor[int]()}:    narrowSigned[int](math.MinInt, math.MaxInt),
		{i64, reflect.TypeFor[int8]()}:   narrowSigned[int8](math.MinInt8, math.MaxInt8),
		{i64, reflect.TypeFor[int16]()}:  narrowSigned[int16](math.MinInt16, math.MaxInt16),
		{i64, reflect.TypeFor[int32]()}:  narrowSigned[int32](math.MinInt32, math.MaxInt32),
		{i64, reflect.TypeFor[uint]()}:   narrowUnsigned[uint](math.MaxUint),
		{i64, reflect.TypeFor[uint8]()}:  narrowUnsigned[uint8](math.MaxUint8),
		{i64, reflect.TypeFor[uint16]()}: narrowUnsigned[uint16](math.MaxUint16),
		{i64, reflect.TypeFor[uint32]()}: narrowUnsigned[uint32](math.MaxUint32),
		{i64, reflect.TypeFor[uint64]()}: narrowUnsigned[uint64](math.MaxUint64),
		{i64, f64}: func(raw any) (any, error) {
			return float64(raw.(int64)), nil
		},
		{f64, reflect.TypeFor[float32]()}: func(raw any) (any, error) {
			f := raw.(float64)
			if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
				return nil, errOverflow
			}
			return float32(f), nil
		},
		{f64, i64}: func(raw any) (any, error) {
			f := raw.(float64)
			if f != math.Trunc(f) {
				return nil, errFraction
			}
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, errOverflow
			}
			return int64(f), nil
		},
	}
	return m
}

func narrowSigned[T signedInt](lo, hi int64) ConvertFunc {
	return func(raw any) (any, error) {
		n := raw.(int64)
		if n < lo || n > hi {
			return nil, fmt.Errorf("%w: %d", errOverflow, n)
		}
		return T(n), nil
	}
}

func narrowUnsigned[T unsignedInt](hi uint64) ConvertFunc {
	return func(raw any) (any, error) {
		n := raw.(int64)
		if n < 0 || uint64(n) > hi {
			return nil, fmt.Errorf("%w: %d", errOverflow, n)
		}
		return T(n), nil
	}
}
