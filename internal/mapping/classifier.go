package mapping

import (
	"strings"

	"github.com/brensch/csvevents/internal/config"
)

// Classification is the outcome of matching a filename against the markers.
// An empty DataType means the file is unclassified and must be skipped.
type Classification struct {
	FileName string
	DataType string
	Marker   string
	// Also lists markers that matched after the winning one.
	Also []string
}

// Classified reports whether a marker matched.
func (c Classification) Classified() bool { return c.DataType != "" }

// Classifier determines a file's data type from its name.
type Classifier struct {
	markers []config.Marker
}

// NewClassifier keeps markers in the given order; the first match wins.
// Empty markers are dropped since they would match every file.
func NewClassifier(markers []config.Marker) *Classifier {
	kept := make([]config.Marker, 0, len(markers))
	for _, m := range markers {
		if m.Value != "" {
			kept = append(kept, m)
		}
	}
	return &Classifier{markers: kept}
}

// DataTypes returns the data types this classifier can produce.
func (c *Classifier) DataTypes() []string {
	return DataTypes(c.markers)
}

// Classify matches name against each marker by substring presence.
func (c *Classifier) Classify(name string) Classification {
	res := Classification{FileName: name}
	for _, m := range c.markers {
		if !strings.Contains(name, m.Value) {
			continue
		}
		if res.DataType == "" {
			res.DataType = m.DataType
			res.Marker = m.Value
			continue
		}
		res.Also = append(res.Also, m.Value)
	}
	return res
}
