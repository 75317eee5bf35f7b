package webmod

import (
	"errors"
)

// Application errors
var (
	// Configuration errors
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required field is missing")
	ErrConfigValidationFailed     = errors.New("config validation failed")
	ErrConfigFeederError          = errors.New("config feeder error")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrDefaultValueParseError     = errors.New("failed to parse default value")
	ErrDefaultValueOverflowsInt   = errors.New("default value overflows int")
	ErrDefaultValueOverflowsUint  = errors.New("default value overflows uint")
	ErrDefaultValueOverflowsFloat = errors.New("default value overflows float")

	// Module tree errors
	ErrModuleNil         = errors.New("module is nil")
	ErrModuleCycle       = errors.New("module tree revisits a module")
	ErrModuleTreeTooDeep = errors.New("module tree exceeds maximum depth")

	// Dependency resolution errors
	ErrNoProviderReady  = errors.New("no provider ready to resolve")
	ErrProviderFailed   = errors.New("provider factory failed")
	ErrProviderNilType  = errors.New("provider has no type")
	ErrContainerSealed  = errors.New("container already initialized")
	ErrProviderNotFound = errors.New("provider not registered")

	// Request errors
	ErrBodyTooLarge       = errors.New("request body exceeds limit")
	ErrHeaderTooLarge     = errors.New("request headers exceed byte limit")
	ErrTooManyHeaders     = errors.New("request headers exceed count limit")
	ErrMalformedMultipart = errors.New("malformed multipart body")

	// Streaming errors
	ErrStreamClosed = errors.New("stream closed")
	ErrStreamSend   = errors.New("stream consumer gone")

	// Application lifecycle errors
	ErrApplicationNotInitialized = errors.New("application not initialized")
	ErrDrainTimeout              = errors.New("timed out waiting for in-flight requests")
)
