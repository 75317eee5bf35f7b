package webmod

import (
	"fmt"
)

// Feeder populates a config struct from one source.
type Feeder interface {
	Feed(target any) error
}

// LoadConfig fills cfg from its `default` tags, then from each feeder in
// order, then checks `required` tags and calls Validate when cfg implements
// ConfigValidator. Later feeders override earlier ones.
func LoadConfig(cfg any, feeders ...Feeder) error {
	if err := ProcessConfigDefaults(cfg); err != nil {
		return err
	}
	for _, f := range feeders {
		if err := f.Feed(cfg); err != nil {
			return fmt.Errorf("%w: %T: %w", ErrConfigFeederError, f, err)
		}
	}
	if err := ValidateConfigRequired(cfg); err != nil {
		return err
	}
	if validator, ok := cfg.(ConfigValidator); ok {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}
