package items

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry is one item in an import file.
type Entry struct {
	Text  string   `yaml:"text" json:"text"`
	Links []string `yaml:"links" json:"links"`
}

// ReadEntries decodes a YAML list of entries.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&entries); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: import file is empty", ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: parse import file: %v", ErrInvalidInput, err)
	}
	return entries, nil
}

// LoadEntries reads entries from a YAML file.
func LoadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	entries, err := ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
