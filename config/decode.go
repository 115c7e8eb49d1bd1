package config

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Decode fills a builder's configuration struct from resolved keyword
// arguments. target must be a pointer to a struct; each kwarg key is
// matched against the field with the corresponding CamelCase name (or an
// explicit `config:"name"` tag). Unknown keys are an error, so parameter
// typos fail the build instead of being silently dropped.
func Decode(kwargs map[string]any, target any) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Pointer || ptr.Elem().Kind() != reflect.Struct {
		return errors.Errorf("Decode target must be a pointer to struct, got %T", target)
	}
	structValue := ptr.Elem()
	structType := structValue.Type()

	fields := make(map[string]reflect.Value, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		key := snakeCase(field.Name)
		if tag, found := field.Tag.Lookup("config"); found {
			if tag == "-" {
				continue
			}
			key = tag
		}
		fields[key] = structValue.Field(i)
	}

	for key, value := range kwargs {
		field, found := fields[key]
		if !found {
			return errors.Errorf("unexpected parameter %q (known: %s)",
				key, strings.Join(knownKeys(fields), ", "))
		}
		if value == nil {
			continue // None leaves the zero value.
		}
		if err := assign(field, reflect.ValueOf(value)); err != nil {
			return errors.WithMessagef(err, "parameter %q", key)
		}
	}
	return nil
}

func knownKeys(fields map[string]reflect.Value) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	return keys
}

func assign(field reflect.Value, value reflect.Value) error {
	fieldType := field.Type()

	// Direct assignment covers concrete matches and interface fields.
	if value.Type().AssignableTo(fieldType) {
		field.Set(value)
		return nil
	}

	switch fieldType.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		if value.Kind() == reflect.Int {
			field.SetInt(value.Int())
			return nil
		}
	case reflect.Float32, reflect.Float64:
		switch value.Kind() {
		case reflect.Int:
			field.SetFloat(float64(value.Int()))
			return nil
		case reflect.Float64:
			field.SetFloat(value.Float())
			return nil
		}
	case reflect.Slice:
		if value.Kind() != reflect.Slice {
			break
		}
		out := reflect.MakeSlice(fieldType, value.Len(), value.Len())
		for i := 0; i < value.Len(); i++ {
			elem := value.Index(i)
			if elem.Kind() == reflect.Interface {
				elem = elem.Elem()
			}
			if err := assign(out.Index(i), elem); err != nil {
				return errors.WithMessagef(err, "element %d", i)
			}
		}
		field.Set(out)
		return nil
	case reflect.Map:
		if value.Kind() != reflect.Map {
			break
		}
		out := reflect.MakeMapWithSize(fieldType, value.Len())
		iter := value.MapRange()
		for iter.Next() {
			elem := iter.Value()
			if elem.Kind() == reflect.Interface {
				elem = elem.Elem()
			}
			entry := reflect.New(fieldType.Elem()).Elem()
			if err := assign(entry, elem); err != nil {
				return errors.WithMessagef(err, "entry %v", iter.Key())
			}
			out.SetMapIndex(iter.Key(), entry)
		}
		field.Set(out)
		return nil
	default:
	}
	return errors.Errorf("cannot use %s value as %s", value.Type(), fieldType)
}

// snakeCase converts an exported Go field name to its configuration key:
// "BufferSize" -> "buffer_size".
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
