// Package volume reassembles per-tilt products into multi-tilt volumes.
package volume

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Family is an ordered list of product file suffixes that make up one
// volume, lowest tilt first.
type Family struct {
	Name     string   `yaml:"name"`
	Suffixes []string `yaml:"suffixes"`
}

// Position returns the index of suffix in the family, or -1.
func (f Family) Position(suffix string) int {
	for i, s := range f.Suffixes {
		if strings.EqualFold(s, suffix) {
			return i
		}
	}
	return -1
}

// Families is the set of volume families the service assembles.
type Families []Family

type familiesFile struct {
	Families Families `yaml:"families"`
}

// DefaultFamilies returns the built-in families used when no file is configured.
func DefaultFamilies() Families {
	return Families{
		{Name: "srm", Suffixes: []string{"N0S", "N1S", "N2S", "N3S"}},
		{Name: "reflectivity", Suffixes: []string{"N0Q", "NAQ", "N1Q", "NBQ", "N2Q", "N3Q"}},
		{Name: "velocity", Suffixes: []string{"N0U", "NAU", "N1U", "NBU", "N2U", "N3U"}},
		{Name: "zdr", Suffixes: []string{"N0X", "NAX", "N1X", "NBX", "N2X", "N3X"}},
		{Name: "cc", Suffixes: []string{"N0C", "NAC", "N1C", "NBC", "N2C", "N3C"}},
		{Name: "kdp", Suffixes: []string{"N0K", "NAK", "N1K", "NBK", "N2K", "N3K"}},
		{Name: "hc", Suffixes: []string{"N0H", "NAH", "N1H", "NBH", "N2H", "N3H"}},
	}
}

// LoadFamilies reads families from a YAML file. An empty path returns the
// defaults.
func LoadFamilies(path string) (Families, error) {
	if path == "" {
		return DefaultFamilies(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read volume families: %w", err)
	}
	return ParseFamilies(data)
}

// ParseFamilies decodes and validates a YAML families document:
//
//	families:
//	  - name: srm
//	    suffixes: [N0S, N1S, N2S, N3S]
func ParseFamilies(data []byte) (Families, error) {
	var doc familiesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse volume families: %w", err)
	}
	if err := doc.Families.Validate(); err != nil {
		return nil, err
	}
	return doc.Families, nil
}

// Validate rejects empty families and suffixes claimed by more than one family.
func (fs Families) Validate() error {
	if len(fs) == 0 {
		return errors.New("no volume families defined")
	}
	names := make(map[string]bool, len(fs))
	owner := map[string]string{}
	for _, f := range fs {
		if f.Name == "" {
			return errors.New("volume family without a name")
		}
		if names[f.Name] {
			return fmt.Errorf("volume family %q defined twice", f.Name)
		}
		names[f.Name] = true
		if len(f.Suffixes) == 0 {
			return fmt.Errorf("volume family %q has no suffixes", f.Name)
		}
		for _, s := range f.Suffixes {
			key := strings.ToUpper(s)
			if prev, ok := owner[key]; ok {
				return fmt.Errorf("suffix %s in both %q and %q", s, prev, f.Name)
			}
			owner[key] = f.Name
		}
	}
	return nil
}

// Lookup returns the family containing suffix.
func (fs Families) Lookup(suffix string) (Family, bool) {
	for _, f := range fs {
		if f.Position(suffix) >= 0 {
			return f, true
		}
	}
	return Family{}, false
}
