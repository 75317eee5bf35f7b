// Package feeders reads configuration from YAML, TOML and JSON files,
// environment variables and .env files, and watches config files for
// changes.
package feeders

import (
	"fmt"

	"github.com/golobby/config/v3/pkg/feeder"
)

// YamlFeeder reads a YAML file.
type YamlFeeder struct {
	feeder.Yaml
}

func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{feeder.Yaml{Path: filePath}}
}

// FeedKey decodes the value under key into target. A missing key leaves
// target untouched.
func (y YamlFeeder) FeedKey(key string, target any) error {
	if err := feedSection(y.Feed, yamlCodec, key, target); err != nil {
		return fmt.Errorf("yaml %s %q: %w", y.Path, key, err)
	}
	return nil
}
