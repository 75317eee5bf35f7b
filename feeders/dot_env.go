package feeders

import (
	"fmt"

	"github.com/joho/godotenv"
)

// DotEnvFeeder reads variables from a .env file and applies them with the
// same rules as EnvFeeder. The process environment is not modified.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a DotEnvFeeder for path.
func NewDotEnvFeeder(path, prefix string) DotEnvFeeder {
	return DotEnvFeeder{Path: path, Prefix: prefix}
}

// Feed reads the file and populates structure.
func (f DotEnvFeeder) Feed(structure any) error {
	vars, err := godotenv.Read(f.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDotEnvRead, f.Path, err)
	}
	env := EnvFeeder{
		Prefix: f.Prefix,
		lookup: func(name string) (string, bool) {
			v, ok := vars[name]
			return v, ok
		},
	}
	return env.Feed(structure)
}
