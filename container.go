package webmod

import (
	"fmt"
	"reflect"
	"strings"
)

// Container holds one instance per type, shared by every request.
//
// Registration and Initialize run single-threaded during boot. Once
// Initialize succeeds the container is sealed and only read, so it is
// handed to request goroutines without locking. Instances that carry
// mutable state synchronize themselves.
type Container struct {
	instances map[reflect.Type]any
	pending   []Provider
	resolved  []reflect.Type
	sealed    bool
	logger    Logger
}

// NewContainer creates an empty container.
func NewContainer(logger Logger) *Container {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Container{
		instances: make(map[reflect.Type]any),
		logger:    logger,
	}
}

// Register stores v under T. The first registration of a type wins; later
// ones are ignored and Register reports false.
func Register[T any](c *Container, v T) bool {
	return c.register(reflect.TypeFor[T](), v)
}

func (c *Container) register(key reflect.Type, v any) bool {
	if c.sealed {
		c.logger.Warn("Ignoring registration on initialized container", "type", key.String())
		return false
	}
	if _, exists := c.instances[key]; exists {
		c.logger.Debug("Type already registered, keeping first instance", "type", key.String())
		return false
	}
	c.instances[key] = v
	return true
}

// RegisterLazy queues p for resolution by Initialize.
func (c *Container) RegisterLazy(p Provider) {
	if c.sealed {
		c.logger.Warn("Ignoring provider on initialized container", "type", p.Type().String())
		return
	}
	c.pending = append(c.pending, p)
}

// Has reports whether an instance is registered under key.
func (c *Container) Has(key reflect.Type) bool {
	_, ok := c.instances[key]
	return ok
}

// Get returns the instance registered under T.
func Get[T any](c *Container) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	v, ok := c.instances[reflect.TypeFor[T]()]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// MustGet returns the instance registered under T and panics if there is none.
func MustGet[T any](c *Container) T {
	v, ok := Get[T](c)
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrProviderNotFound, reflect.TypeFor[T]()))
	}
	return v
}

// Resolved lists the provider types in the order Initialize built them.
func (c *Container) Resolved() []reflect.Type {
	return append([]reflect.Type(nil), c.resolved...)
}

// Sealed reports whether Initialize has completed.
func (c *Container) Sealed() bool {
	return c.sealed
}

// Initialize collects the providers of root and its descendants in
// depth-first pre-order, queues them behind any already registered with
// RegisterLazy and resolves them in dependency order.
//
// Each pass picks the first queued provider whose dependencies are all
// registered. A pass that finds none fails with ErrNoProviderReady; this is
// how cycles and missing dependencies surface.
func (c *Container) Initialize(root *Module) error {
	if c.sealed {
		return ErrContainerSealed
	}
	root.Walk(func(m *Module, _ int) bool {
		c.pending = append(c.pending, m.Providers...)
		return true
	})

	for len(c.pending) > 0 {
		idx := c.firstReady()
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNoProviderReady, c.describePending())
		}
		p := c.pending[idx]
		key := p.Type()
		if key == nil {
			return ErrProviderNilType
		}

		instance, err := p.Provide(c)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProviderFailed, key, err)
		}
		if c.register(key, instance) {
			c.resolved = append(c.resolved, key)
			c.logger.Debug("Provider resolved", "type", key.String())
		}

		remaining := make([]Provider, 0, len(c.pending)-1)
		remaining = append(remaining, c.pending[:idx]...)
		c.pending = append(remaining, c.pending[idx+1:]...)
	}

	c.sealed = true
	c.logger.Info("Container initialized", "instances", len(c.instances))
	return nil
}

func (c *Container) firstReady() int {
	for i, p := range c.pending {
		if c.ready(p) {
			return i
		}
	}
	return -1
}

func (c *Container) ready(p Provider) bool {
	for _, dep := range p.Dependencies() {
		if !c.Has(dep) {
			return false
		}
	}
	return true
}

func (c *Container) describePending() string {
	parts := make([]string, 0, len(c.pending))
	for _, p := range c.pending {
		var missing []string
		for _, dep := range p.Dependencies() {
			if !c.Has(dep) {
				missing = append(missing, dep.String())
			}
		}
		parts = append(parts, fmt.Sprintf("%s needs [%s]", p.Type(), strings.Join(missing, ", ")))
	}
	return strings.Join(parts, "; ")
}
