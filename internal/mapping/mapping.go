package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/brensch/csvevents/internal/config"
)

var (
	// ErrMissingDataType is returned when a data type the classifier can
	// produce has no entry in the field mappings.
	ErrMissingDataType = errors.New("field mappings missing data type")
	// ErrInvalidMappings is returned for mapping files that are not the expected shape.
	ErrInvalidMappings = errors.New("invalid mappings file")
)

// FieldMap maps a source CSV column to an output JSON field.
type FieldMap map[string]string

// FieldMappings maps a data type to its field map. It is loaded once per run
// and never modified.
type FieldMappings map[string]FieldMap

// For returns the field map of a data type.
func (m FieldMappings) For(dataType string) (FieldMap, bool) {
	fm, ok := m[dataType]
	return fm, ok
}

// DestinationFields returns the sorted output field names of a data type.
func (m FieldMappings) DestinationFields(dataType string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, dest := range m[dataType] {
		if !seen[dest] {
			seen[dest] = true
			out = append(out, dest)
		}
	}
	sort.Strings(out)
	return out
}

// Require checks that every data type has a non-empty field map.
func (m FieldMappings) Require(dataTypes ...string) error {
	var errs error
	for _, dt := range dataTypes {
		if fm, ok := m[dt]; !ok || len(fm) == 0 {
			errs = errors.Join(errs, fmt.Errorf("%w: %s", ErrMissingDataType, dt))
		}
	}
	return errs
}

// LoadFieldMappings reads a JSON object of data type -> {source: dest}.
func LoadFieldMappings(path string) (FieldMappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings file %s: %w", path, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMappings, path, err)
	}
	out := make(FieldMappings, len(raw))
	for dataType, body := range raw {
		var fm FieldMap
		if err := json.Unmarshal(body, &fm); err != nil {
			return nil, fmt.Errorf("%w: %s: entry %q must map column names to field names: %v", ErrInvalidMappings, path, dataType, err)
		}
		out[dataType] = fm
	}
	return out, nil
}

// LoadEventMappings reads a JSON object of filename marker -> data type and
// returns the markers in evaluation order: longest first, then lexical.
func LoadEventMappings(path string) ([]config.Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event mappings file %s: %w", path, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMappings, path, err)
	}
	markers := make([]config.Marker, 0, len(raw))
	for marker, dataType := range raw {
		if marker == "" || dataType == "" {
			return nil, fmt.Errorf("%w: %s: empty marker or data type (%q -> %q)", ErrInvalidMappings, path, marker, dataType)
		}
		markers = append(markers, config.Marker{Value: marker, DataType: dataType})
	}
	sort.Slice(markers, func(i, j int) bool {
		if len(markers[i].Value) != len(markers[j].Value) {
			return len(markers[i].Value) > len(markers[j].Value)
		}
		return markers[i].Value < markers[j].Value
	})
	return markers, nil
}

// DataTypes returns the distinct data types of a marker list in order.
func DataTypes(markers []config.Marker) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range markers {
		if !seen[m.DataType] {
			seen[m.DataType] = true
			out = append(out, m.DataType)
		}
	}
	return out
}
