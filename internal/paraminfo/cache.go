package paraminfo

import (
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	singleCache *cache
	once        sync.Once
)

// Cache enforces the singleton pattern,
// ensuring access to a single instance of cache.
func Cache() *cache {
	once.Do(func() {
		singleCache = &cache{
			cache: make(map[reflect.Type]*Struct),
		}
	})

	return singleCache
}

// cache is responsible for generating, caching and retrieving reflection
// information about parameter structs.
type cache struct {
	mutex sync.RWMutex
	cache map[reflect.Type]*Struct
}

// Reflect will return the Struct info of the type of value, generating and
// caching as required. value must be a struct or a pointer to one.
func (r *cache) Reflect(value any) (*Struct, error) {
	t := reflect.TypeOf(value)
	if t == nil {
		return nil, errors.New("need struct, got nil")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("need struct, got %s", t.Kind())
	}

	r.mutex.RLock()
	info, ok := r.cache[t]
	r.mutex.RUnlock()
	if ok {
		return info, nil
	}

	info = &Struct{typ: t}
	if err := generate(t, nil, info, map[string]bool{}); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	r.cache[t] = info
	r.mutex.Unlock()
	return info, nil
}

// generate appends the tagged fields of typ to info. Untagged embedded
// structs are walked recursively.
func generate(typ reflect.Type, index []int, info *Struct, seen map[string]bool) error {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldIndex := append(append([]int{}, index...), i)

		tag := field.Tag.Get("param")
		if tag == "" {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				if err := generate(field.Type, fieldIndex, info, seen); err != nil {
					return err
				}
			}
			continue
		}
		if !field.IsExported() {
			return errors.Errorf("field %q is not exported", field.Name)
		}

		key, required, structural, err := parseTag(tag)
		if err != nil {
			return err
		}
		if seen[key] {
			return errors.Errorf("key %q appears more than once in %s", key, info.typ.Name())
		}
		seen[key] = true

		info.Fields = append(info.Fields, Field{
			Name:       field.Name,
			Key:        key,
			Required:   required,
			Structural: structural,
			index:      fieldIndex,
			typ:        field.Type,
		})
	}
	return nil
}

// parseTag parses the input tag string and returns its key and whether it
// contains the "required" and "structural" options.
func parseTag(tag string) (key string, required, structural bool, err error) {
	options := strings.Split(tag, ",")
	key = options[0]
	if key == "" {
		return "", false, false, errors.Errorf("empty key in tag %q", tag)
	}

	for _, opt := range options[1:] {
		switch strings.ToLower(opt) {
		case "required":
			required = true
		case "structural":
			structural = true
		default:
			return "", false, false, errors.Errorf("unexpected tag value %q", opt)
		}
	}
	return key, required, structural, nil
}
