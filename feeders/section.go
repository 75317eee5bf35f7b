package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// codec re-encodes one decoded document section into a typed target.
type codec struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	yamlCodec = codec{marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	tomlCodec = codec{marshal: toml.Marshal, unmarshal: toml.Unmarshal}
)

// feedSection loads the whole document through feed and decodes the
// top-level entry named key into target. A missing key leaves target
// untouched.
func feedSection(feed func(any) error, c codec, key string, target any) error {
	var doc map[string]any
	if err := feed(&doc); err != nil {
		return err
	}
	value, ok := doc[key]
	if !ok {
		return nil
	}
	return c.decode(value, target)
}

func (c codec) decode(value, target any) error {
	raw, err := c.marshal(value)
	if err != nil {
		return fmt.Errorf("re-encode section: %w", err)
	}
	return c.unmarshal(raw, target)
}
