package render

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ImageMapFile is the file name the image map is written under.
const ImageMapFile = "image_extraction_map.json"

// ImageEntry tells the image extractor where to save one picture.
type ImageEntry struct {
	PageID           string `json:"page_id"`
	TargetPath       string `json:"target_path"`
	RelativePath     string `json:"relative_path"`
	FileName         string `json:"file_name"`
	AltText          string `json:"alt_text"`
	Section          string `json:"section"`
	SectionSanitized string `json:"section_sanitized,omitempty"`
	Page             string `json:"page"`
	Format           string `json:"format,omitempty"`
}

// ImageMap is keyed by the OneNote callback ID of each image.
type ImageMap map[string]ImageEntry

// MarshalIndent serializes the map with stable key order.
func (m ImageMap) MarshalIndent() ([]byte, error) {
	if m == nil {
		m = ImageMap{}
	}
	return json.MarshalIndent(m, "", "  ")
}

// Merge copies entries from other that m does not already hold.
func (m ImageMap) Merge(other ImageMap) {
	for id, e := range other {
		if _, ok := m[id]; !ok {
			m[id] = e
		}
	}
}

var (
	alphaPairRe   = regexp.MustCompile(`^[A-Za-z]+_[A-Za-z]+$`)
	digitSuffixRe = regexp.MustCompile(`_(\d+)`)
)

// DesanitizeSection guesses the display name of a section from a directory
// name produced by an exporter that replaced '.' and ' ' with '_'. It is a
// lookup hint for the extractor only; the result may be wrong.
func DesanitizeSection(name string) string {
	if alphaPairRe.MatchString(name) {
		return strings.ReplaceAll(name, "_", ".")
	}
	return digitSuffixRe.ReplaceAllString(name, " $1")
}
