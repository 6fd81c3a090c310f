// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout timestamps are written in when rendered as
// literals.
const TimestampLayout = "2006-01-02 15:04:05"

// MissingInputError is returned when an input expression references a key
// that has no value.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("input %q not provided", e.Name)
}

// PrimedStatement contains the SQL with placeholders and the argument values
// to run a parsed statement on a database.
type PrimedStatement struct {
	sql  string
	args []any
}

// SQL returns the statement text with input expressions replaced by "?"
// placeholders.
func (ps *PrimedStatement) SQL() string {
	return ps.sql
}

// Args returns the arguments matching the placeholders of SQL, in order.
func (ps *PrimedStatement) Args() []any {
	return ps.args
}

// BindInputs replaces every input expression with placeholders and collects
// the values from inputs.
func (pe *ParsedExpr) BindInputs(inputs map[string]any) (ps *PrimedStatement, err error) {
	var sb strings.Builder
	args := []any{}
	for _, part := range pe.parts {
		switch part := part.(type) {
		case *bypassPart:
			sb.WriteString(part.chunk)
		case *inputPart:
			vals, err := locate(part, inputs)
			if err != nil {
				return nil, err
			}
			if part.slice && len(vals) == 0 {
				// IN (NULL) matches nothing.
				sb.WriteString("NULL")
				continue
			}
			for i, val := range vals {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString("?")
				args = append(args, val)
			}
		default:
			return nil, fmt.Errorf("internal error: unknown part type %T", part)
		}
	}
	return &PrimedStatement{sql: sb.String(), args: args}, nil
}

// Inline returns the statement text with every input expression replaced by
// its value written as a SQL literal. The result is meant for display; use
// BindInputs to run a statement.
func (pe *ParsedExpr) Inline(inputs map[string]any) (string, error) {
	var sb strings.Builder
	for _, part := range pe.parts {
		switch part := part.(type) {
		case *bypassPart:
			sb.WriteString(part.chunk)
		case *inputPart:
			vals, err := locate(part, inputs)
			if err != nil {
				return "", err
			}
			if part.slice && len(vals) == 0 {
				sb.WriteString("NULL")
				continue
			}
			for i, val := range vals {
				if i > 0 {
					sb.WriteString(", ")
				}
				lit, err := Literal(val)
				if err != nil {
					return "", fmt.Errorf("invalid input parameter %s: %w", part.raw, err)
				}
				sb.WriteString(lit)
			}
		default:
			return "", fmt.Errorf("internal error: unknown part type %T", part)
		}
	}
	return sb.String(), nil
}

// locate fetches the value(s) of an input expression.
func locate(part *inputPart, inputs map[string]any) ([]any, error) {
	val, ok := inputs[part.name]
	if !ok {
		return nil, &MissingInputError{Name: part.name}
	}
	if !part.slice {
		if isSlice(val) {
			return nil, fmt.Errorf("invalid input parameter %s: slice values must be referenced as $%s[:]", part.raw, part.name)
		}
		return []any{val}, nil
	}
	if !isSlice(val) {
		return nil, fmt.Errorf("invalid input parameter %s: need slice, got %T", part.raw, val)
	}
	v := reflect.ValueOf(val)
	vals := make([]any, v.Len())
	for i := range vals {
		vals[i] = v.Index(i).Interface()
	}
	return vals, nil
}

// isSlice reports whether val is a slice or array other than a byte slice.
func isSlice(val any) bool {
	if val == nil {
		return false
	}
	if _, ok := val.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(val).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Literal writes val as a SQL literal.
func Literal(val any) (string, error) {
	if valuer, ok := val.(driver.Valuer); ok {
		v, err := valuer.Value()
		if err != nil {
			return "", err
		}
		val = v
	}
	switch v := val.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quote(v), nil
	case []byte:
		return "X'" + hex.EncodeToString(v) + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return quote(v.Format(TimestampLayout)), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.String:
		return quote(rv.String()), nil
	}
	return "", fmt.Errorf("cannot write %T as a literal", val)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
