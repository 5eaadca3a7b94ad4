package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/csvevents/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFieldMappings(t *testing.T) {
	path := writeFile(t, "mappings.json", `{
		"securenow": {"User Name": "username", "Login Time": "event_time"},
		"pdw": {"Account": "account"}
	}`)

	m, err := LoadFieldMappings(path)
	require.NoError(t, err)

	fm, ok := m.For("securenow")
	require.True(t, ok)
	assert.Equal(t, "username", fm["User Name"])
	assert.Equal(t, []string{"event_time", "username"}, m.DestinationFields("securenow"))
	assert.NoError(t, m.Require("securenow", "pdw"))

	_, ok = m.For("other")
	assert.False(t, ok)
}

func TestFieldMappings_RequireMissing(t *testing.T) {
	m := FieldMappings{"securenow": {"a": "b"}, "pdw": {}}

	err := m.Require("securenow", "pdw", "extra")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDataType)
	assert.Contains(t, err.Error(), "pdw")
	assert.Contains(t, err.Error(), "extra")
	assert.NotContains(t, err.Error(), "securenow")
}

func TestLoadFieldMappings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{`},
		{"top level array", `[]`},
		{"entry not object", `{"securenow": "username"}`},
		{"non string destination", `{"securenow": {"a": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFieldMappings(writeFile(t, "m.json", tt.content))
			assert.ErrorIs(t, err, ErrInvalidMappings)
		})
	}
}

func TestLoadFieldMappings_MissingFile(t *testing.T) {
	_, err := LoadFieldMappings(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadEventMappings_Order(t *testing.T) {
	path := writeFile(t, "events.json", `{
		"PDW": "pdw",
		"SecureNow": "securenow",
		"SN": "securenow",
		"ABC": "abc"
	}`)

	markers, err := LoadEventMappings(path)
	require.NoError(t, err)
	assert.Equal(t, []config.Marker{
		{Value: "SecureNow", DataType: "securenow"},
		{Value: "ABC", DataType: "abc"},
		{Value: "PDW", DataType: "pdw"},
		{Value: "SN", DataType: "securenow"},
	}, markers)
	assert.Equal(t, []string{"securenow", "abc", "pdw"}, DataTypes(markers))
}

func TestLoadEventMappings_EmptyValue(t *testing.T) {
	_, err := LoadEventMappings(writeFile(t, "events.json", `{"PDW": ""}`))
	assert.ErrorIs(t, err, ErrInvalidMappings)
}
