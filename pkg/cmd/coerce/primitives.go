package coerce

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/spf13/cast"
)

// Char is a single-character parameter.
type Char rune

func (c Char) String() string { return string(c) }

// OffsetTime is a date-time that must carry an explicit UTC offset.
type OffsetTime struct {
	time.Time
}

type parseFunc func(s string) (any, error)

// dateLayouts are tried in order once the generic parse fails. They cover
// the ISO-8601 basic and extended forms down to hour precision.
var dateLayouts = []string{
	"20060102T150405-07:00",
	"20060102T150405-07",
	"20060102T150405Z",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05-07",
	"2006-01-02T15:04:05Z",
	"20060102T1504-07:00",
	"20060102T1504-07",
	"20060102T1504Z",
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04-07",
	"2006-01-02T15:04Z",
	"20060102T15-07:00",
	"20060102T15-07",
	"20060102T15Z",
	"2006-01-02T15-07:00",
	"2006-01-02T15-07",
	"2006-01-02T15Z",
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
}

var primitives = map[reflect.Type]parseFunc{
	reflect.TypeFor[bool]():          parseBool,
	reflect.TypeFor[int]():           signed[int](strconv.IntSize),
	reflect.TypeFor[int8]():          signed[int8](8),
	reflect.TypeFor[int16]():         signed[int16](16),
	reflect.TypeFor[int32]():         signed[int32](32),
	reflect.TypeFor[int64]():         signed[int64](64),
	reflect.TypeFor[uint]():          unsigned[uint](strconv.IntSize),
	reflect.TypeFor[uint8]():         unsigned[uint8](8),
	reflect.TypeFor[uint16]():        unsigned[uint16](16),
	reflect.TypeFor[uint32]():        unsigned[uint32](32),
	reflect.TypeFor[uint64]():        unsigned[uint64](64),
	reflect.TypeFor[float32]():       parseFloat32,
	reflect.TypeFor[float64]():       parseFloat64,
	reflect.TypeFor[*apd.Decimal]():  parseDecimal,
	reflect.TypeFor[apd.Decimal]():   parseDecimalValue,
	reflect.TypeFor[Char]():          parseChar,
	reflect.TypeFor[time.Time]():     parseTime,
	reflect.TypeFor[OffsetTime]():    parseOffsetTime,
	reflect.TypeFor[time.Duration](): parseDuration,
}

type signedInt interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsignedInt interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func signed[T signedInt](bits int) parseFunc {
	return func(s string) (any, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, bits)
		if err != nil {
			return nil, err
		}
		return T(n), nil
	}
}

func unsigned[T unsignedInt](bits int) parseFunc {
	return func(s string) (any, error) {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, bits)
		if err != nil {
			return nil, err
		}
		return T(n), nil
	}
}

func parseBool(s string) (any, error) {
	return strconv.ParseBool(strings.TrimSpace(s))
}

func parseFloat32(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return nil, err
	}
	return float32(f), nil
}

func parseFloat64(s string) (any, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseDecimal handles *apd.Decimal, which is already nullable.
func parseDecimal(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return (*apd.Decimal)(nil), nil
	}
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func parseDecimalValue(s string) (any, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return *d, nil
}

func parseChar(s string) (any, error) {
	if utf8.RuneCountInString(s) != 1 {
		return nil, fmt.Errorf("expected a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return Char(r), nil
}

func parseTime(s string) (any, error) {
	s = strings.TrimSpace(s)
	if t, err := cast.ToTimeE(s); err == nil {
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date-time %q", s)
}

func parseOffsetTime(s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return OffsetTime{t}, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return OffsetTime{t}, nil
		}
	}
	return nil, fmt.Errorf("date-time %q has no recognizable offset", s)
}

func parseDuration(s string) (any, error) {
	return time.ParseDuration(strings.TrimSpace(s))
}

// primitiveFor returns the parser of t. Pointer types use the parser of
// their element and yield a typed nil for blank input.
func primitiveFor(t reflect.Type) (parseFunc, bool) {
	if fn, ok := primitives[t]; ok {
		return fn, true
	}
	if t.Kind() != reflect.Pointer {
		return nil, false
	}
	elem, ok := primitives[t.Elem()]
	if !ok {
		return nil, false
	}
	return func(s string) (any, error) {
		if strings.TrimSpace(s) == "" {
			return reflect.Zero(t).Interface(), nil
		}
		v, err := elem(s)
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(reflect.ValueOf(v))
		return ptr.Interface(), nil
	}, true
}

// IsPrimitive reports whether t (or its pointer element) has a built-in parser.
func IsPrimitive(t reflect.Type) bool {
	_, ok := primitiveFor(t)
	return ok
}
