package feeders

import (
	"fmt"

	"github.com/golobby/config/v3/pkg/feeder"
)

// TomlFeeder reads a TOML file.
type TomlFeeder struct {
	feeder.Toml
}

func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{feeder.Toml{Path: filePath}}
}

// FeedKey decodes the table under key into target.
func (t TomlFeeder) FeedKey(key string, target any) error {
	if err := feedSection(t.Feed, tomlCodec, key, target); err != nil {
		return fmt.Errorf("toml %s [%s]: %w", t.Path, key, err)
	}
	return nil
}
