package feeders

import (
	"errors"
)

// JSON feeder errors
var (
	ErrJSONRead   = errors.New("cannot read JSON file")
	ErrJSONDecode = errors.New("cannot decode JSON")
)

// Env feeder errors
var (
	ErrEnvInvalidStructure = errors.New("env: expected pointer to struct")
	ErrEnvCannotConvert    = errors.New("env: cannot convert value to field type")
	ErrEnvFieldCannotBeSet = errors.New("env: field cannot be set")
)

// DotEnv feeder errors
var (
	ErrDotEnvRead = errors.New("cannot read .env file")
)

// Watch errors
var (
	ErrWatch = errors.New("cannot watch config file")
)
