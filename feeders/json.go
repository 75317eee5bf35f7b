package feeders

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// JSONFeeder reads a JSON file. Values are decoded through the target's
// yaml tags, so a single set of tags and duration strings such as "30s"
// work for every file format.
type JSONFeeder struct {
	Path string
}

func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

// Feed decodes the file into structure.
func (j JSONFeeder) Feed(structure any) error {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJSONRead, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrJSONDecode, j.Path, err)
	}
	return j.codec().decode(generic, structure)
}

// FeedKey decodes the value under key into target.
func (j JSONFeeder) FeedKey(key string, target any) error {
	return feedSection(j.Feed, j.codec(), key, target)
}

func (j JSONFeeder) codec() codec {
	return codec{
		marshal: yaml.Marshal,
		unmarshal: func(raw []byte, target any) error {
			if err := yaml.Unmarshal(raw, target); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrJSONDecode, j.Path, err)
			}
			return nil
		},
	}
}
