package extract

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Layout maps source column names to the lat/lon fields when a dataset's
// headers differ from the defaults.
type Layout struct {
	Lat string `yaml:"lat"`
	Lon string `yaml:"lon"`
}

// LoadLayout reads a column layout from a YAML file of the form:
//
//	layout:
//	  lat: LATITUDE_WGS84
//	  lon: LONGITUDE_WGS84
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read layout %s", path)
	}

	var wrapper struct {
		Layout Layout `yaml:"layout"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "extract: parse layout")
	}

	l := wrapper.Layout
	if l.Lat == "" || l.Lon == "" {
		return nil, eris.New("extract: layout must name both lat and lon columns")
	}
	return &l, nil
}

// latNames returns the accepted lat header names, lowercased. A nil layout
// falls back to the built-in defaults.
func (l *Layout) latNames() []string {
	if l == nil {
		return latColumns
	}
	return []string{strings.ToLower(l.Lat)}
}

func (l *Layout) lonNames() []string {
	if l == nil {
		return lonColumns
	}
	return []string{strings.ToLower(l.Lon)}
}
