package metadata

import (
	"fmt"
	"strings"

	"github.com/xhad/pdfalt/internal/models"
)

// AltTextKey is the entry aggregating every image description of a document.
const AltTextKey = "AltText"

// Assertion is a fixed metadata attribute applied to every document.
type Assertion struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// DefaultAssertions are written unless configuration replaces them.
func DefaultAssertions() []Assertion {
	return []Assertion{
		{Key: "TaggedPDF", Value: "Yes"},
		{Key: "ReadingOrder", Value: "Logical and correct"},
		{Key: "TextSelectability", Value: "Text-based"},
		{Key: "NavigationalAids", Value: "TOC and bookmarks included"},
		{Key: "FormsAccessibility", Value: "Interactive forms"},
		{Key: "ColorContrast", Value: "Sufficient contrast"},
		{Key: "FontResizing", Value: "Text resizable"},
		{Key: "AnnotationsAndMetadata", Value: "Document includes annotations"},
	}
}

type MergerConfig struct {
	AltTextKey string
	Assertions []Assertion
}

type Merger struct {
	config MergerConfig
}

func NewWithConfig(config MergerConfig) Merger {
	if config.AltTextKey == "" {
		config.AltTextKey = AltTextKey
	}
	return Merger{config: config}
}

// Combined renders the described records as "name: description" joined
// with " | ", in table order.
func Combined(records []models.DescribedRecord) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, fmt.Sprintf("%s: %s", r.ImageName, r.Description))
	}
	return strings.Join(parts, " | ")
}

// Merge returns a copy of original with the combined descriptions appended
// to the alt text entry and every assertion set. original is not modified
// and no key is removed. Merging twice appends the alt text twice;
// callers that want replacement must clear the entry first.
func (m Merger) Merge(original Dict, records []models.DescribedRecord) Dict {
	key := m.config.AltTextKey
	if key == "" {
		key = AltTextKey
	}
	out := original.Clone()
	out.Append(key, Combined(records))
	for _, a := range m.config.Assertions {
		out.Set(a.Key, a.Value)
	}
	return out
}

// Merge is Merger.Merge with the default alt text key.
func Merge(original Dict, records []models.DescribedRecord, assertions []Assertion) Dict {
	return NewWithConfig(MergerConfig{Assertions: assertions}).Merge(original, records)
}
