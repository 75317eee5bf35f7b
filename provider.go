package webmod

import (
	"fmt"
	"reflect"
)

// Provider constructs one singleton for the container.
//
// Dependencies lists the types that must already be registered before
// Provide may run. Provide receives the container so it can fetch them.
type Provider interface {
	Type() reflect.Type
	Dependencies() []reflect.Type
	Provide(c *Container) (any, error)
}

// TypeOf returns the container key for T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Provide wraps a typed factory as a Provider registered under T.
//
//	webmod.Provide(NewUserService, webmod.TypeOf[*UserStore]())
func Provide[T any](factory func(c *Container) (T, error), deps ...reflect.Type) Provider {
	return &factoryProvider[T]{factory: factory, deps: deps}
}

// Value wraps an already built instance as a Provider with no dependencies.
func Value[T any](v T) Provider {
	return &factoryProvider[T]{factory: func(*Container) (T, error) { return v, nil }}
}

type factoryProvider[T any] struct {
	factory func(c *Container) (T, error)
	deps    []reflect.Type
}

func (p *factoryProvider[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

func (p *factoryProvider[T]) Dependencies() []reflect.Type {
	return p.deps
}

func (p *factoryProvider[T]) Provide(c *Container) (any, error) {
	if p.factory == nil {
		return nil, fmt.Errorf("%w: %s has no factory", ErrProviderFailed, p.Type())
	}
	v, err := p.factory(c)
	if err != nil {
		return nil, err
	}
	return v, nil
}
