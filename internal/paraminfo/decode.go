package paraminfo

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MissingKeyError is returned by Decode when a required key has no value.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Key)
}

// timeLayouts are tried in order when a time field is given as a string.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var timeType = reflect.TypeOf(time.Time{})

// Decode sets the fields of target, a pointer to a struct of the type s was
// generated from, from the values in m. Keys in m without a matching field
// are ignored. A nil value counts as absent.
//
// Values are converted leniently so that maps decoded from TOML, YAML or
// command line flags can be used directly: numbers may be given as strings,
// lists as comma separated strings.
func (s *Struct) Decode(m map[string]any, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.Errorf("need non-nil pointer to struct, got %T", target)
	}
	v = v.Elem()
	if v.Type() != s.typ {
		return errors.Errorf("need pointer to %s, got %T", s.typ.Name(), target)
	}

	for _, f := range s.Fields {
		raw, ok := m[f.Key]
		if !ok || raw == nil {
			if f.Required {
				return &MissingKeyError{Key: f.Key}
			}
			continue
		}
		if err := assign(v.FieldByIndex(f.index), raw); err != nil {
			return errors.Wrapf(err, "invalid parameter %q", f.Key)
		}
	}
	return nil
}

// assign converts raw to the type of fv and sets it.
func assign(fv reflect.Value, raw any) error {
	if fv.Kind() == reflect.Pointer {
		elem := reflect.New(fv.Type().Elem())
		if err := assign(elem.Elem(), raw); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	}

	if fv.Type() == timeType {
		t, err := toTime(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(t))
		return nil
	}

	switch fv.Kind() {
	case reflect.Bool:
		b, err := toBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(raw)
		if err != nil {
			return err
		}
		if fv.OverflowInt(n) {
			return errors.Errorf("value %d overflows %s", n, fv.Type())
		}
		fv.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(raw)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return errors.Errorf("need string, got %T", raw)
		}
		fv.SetString(s)
	case reflect.Slice:
		items, err := toList(raw)
		if err != nil {
			return err
		}
		slice := reflect.MakeSlice(fv.Type(), len(items), len(items))
		for i, item := range items {
			if err := assign(slice.Index(i), item); err != nil {
				return errors.Wrapf(err, "element %d", i)
			}
		}
		fv.Set(slice)
	default:
		return errors.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, errors.Errorf("need bool, got %q", v)
		}
		return b, nil
	}
	if n, err := toInt(raw); err == nil {
		return n != 0, nil
	}
	return false, errors.Errorf("need bool, got %T", raw)
}

func toInt(raw any) (int64, error) {
	if s, ok := raw.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, errors.Errorf("need integer, got %q", s)
		}
		return n, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, errors.Errorf("value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, errors.Errorf("need integer, got %v", f)
		}
		return int64(f), nil
	}
	return 0, errors.Errorf("need integer, got %T", raw)
}

func toFloat(raw any) (float64, error) {
	if s, ok := raw.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, errors.Errorf("need number, got %q", s)
		}
		return f, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return 0, errors.Errorf("need number, got %T", raw)
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		switch v.Location().String() {
		case "datetime-local", "date-local":
			// TOML local date-times have no zone. Their wall clock is
			// kept, as for strings without an offset.
			return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC), nil
		}
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, errors.Errorf("cannot parse %q as a timestamp", v)
	}
	return time.Time{}, errors.Errorf("need timestamp, got %T", raw)
}

// toList accepts any slice or a comma separated string.
func toList(raw any) ([]any, error) {
	if s, ok := raw.(string); ok {
		var items []any
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.Errorf("need list, got %T", raw)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
