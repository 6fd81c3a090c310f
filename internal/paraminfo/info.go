package paraminfo

import (
	"reflect"
)

// Field represents a single tagged field of a parameter struct.
type Field struct {
	// Name is the name of the struct field.
	Name string

	// Key is the parameter key from the field's "param" tag.
	Key string

	// Required is true when "required" is a property of the field's
	// "param" tag.
	Required bool

	// Structural is true when "structural" is a property of the field's
	// "param" tag. Structural values are written into the template text,
	// all others are bound as query arguments.
	Structural bool

	index []int
	typ   reflect.Type
}

// Type returns the Go type of the field.
func (f Field) Type() reflect.Type {
	return f.typ
}

// Struct represents reflected information about a parameter struct type.
type Struct struct {
	typ reflect.Type

	// Fields holds the tagged fields in declaration order. Fields of
	// embedded structs are flattened into the list.
	Fields []Field
}

// Name returns the name of the Struct's type.
func (s *Struct) Name() string {
	return s.typ.Name()
}

// Field returns the field with the given parameter key.
func (s *Struct) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Values splits the fields of value into structural values and bound
// values, keyed by parameter key. Nil pointer fields are left out.
// value must be of the type s was generated from, or a pointer to it.
func (s *Struct) Values(value any) (structural, inputs map[string]any) {
	v := reflect.Indirect(reflect.ValueOf(value))
	structural = map[string]any{}
	inputs = map[string]any{}
	for _, f := range s.Fields {
		fv := v.FieldByIndex(f.index)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		if f.Structural {
			structural[f.Key] = fv.Interface()
		} else {
			inputs[f.Key] = fv.Interface()
		}
	}
	return structural, inputs
}
