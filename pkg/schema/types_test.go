package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		typ     string
		value   any
		want    any
		wantErr bool
	}{
		{"string", "hello", "hello", false},
		{"string", 42, nil, true},
		{"int", 3, 3, false},
		{"int", 3.0, 3, false},
		{"int", 3.5, nil, true},
		{"int", json.Number("7"), 7, false},
		{"int", "7", nil, true},
		{"float", 2, 2.0, false},
		{"float", 2.25, 2.25, false},
		{"float", true, nil, true},
		{"bool", true, true, false},
		{"bool", "true", nil, true},
		{"[string]", []string{"a", "b"}, []any{"a", "b"}, false},
		{"[string]", []any{"a", 1}, nil, true},
		{"[int]", []any{1.0, 2}, []any{1, 2}, false},
		{"[int]", "nope", nil, true},
	}
	for _, tt := range tests {
		typ, err := ParseType(tt.typ)
		require.NoError(t, err)
		got, err := typ.Coerce(tt.value)
		if tt.wantErr {
			assert.Error(t, err, "%s %v", tt.typ, tt.value)
			continue
		}
		require.NoError(t, err, "%s %v", tt.typ, tt.value)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"string", "int", "float", "bool", "[string]", "[[int]]"} {
		typ, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, name, typ.Name())
	}
	_, err := ParseType("date")
	assert.Error(t, err)
	_, err = ParseType("[]")
	assert.Error(t, err)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric(Int()))
	assert.True(t, IsNumeric(Float()))
	assert.False(t, IsNumeric(String()))
	assert.False(t, IsNumeric(Slice(Int())))
}

func TestValidate(t *testing.T) {
	s, err := ParseTypeMap(map[string]string{"name": "string", "attempts": "int", "clues": "[string]"})
	require.NoError(t, err)

	assert.NoError(t, Validate(s, map[string]any{"name": "Ada", "attempts": 2, "clues": nil}))

	err = Validate(s, map[string]any{"name": 1, "attempts": "two", "ghost": true})
	require.Error(t, err)

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Len(t, agg.Errors, 3)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "attempts", ve.Key)
}

func TestSchemaJSON(t *testing.T) {
	s := Schema{"name": String(), "clues": Slice(String())}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"string","clues":"[string]"}`, string(data))

	var back Schema
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "[string]", back["clues"].Name())
}
