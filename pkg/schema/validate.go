package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Schema is a map of variable ids to their expected types.
// Example: {"name": String(), "attempts": Int(), "clues": Slice(String())}
type Schema map[string]Type

// Validate checks that every set value in data conforms to the schema. Unset
// (nil or missing) values are allowed; values with no schema entry are errors.
// All failures are returned together as an *AggregateError.
func Validate(schema Schema, data map[string]any) error {
	var errs []error

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := data[key]
		fieldType, ok := schema[key]
		if !ok {
			errs = append(errs, &ValidationError{Key: key, Reason: "not defined in schema", Value: value})
			continue
		}
		if value == nil {
			continue
		}
		if err := fieldType.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// MarshalJSON serializes the schema as a map of variable ids to type strings.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	raw := make(map[string]string, len(s))
	for key, typ := range s {
		if typ == nil {
			return nil, fmt.Errorf("variable %s: type is nil", key)
		}
		raw[key] = typ.Name()
	}
	return json.Marshal(raw)
}

// UnmarshalJSON deserializes the schema from a map of variable ids to type strings.
func (s *Schema) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTypeMap(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
