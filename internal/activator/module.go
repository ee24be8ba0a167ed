package activator

import (
	"context"
	"errors"

	"github.com/conneroisu/hydrate/internal/dom"
)

var (
	// ErrDuplicateRegistration is returned by RegisterLazy for a tag that is
	// already pending.
	ErrDuplicateRegistration = errors.New("tag name is already pending lazy registration")
	// ErrInvalidModule is reported when a loader returns a module without a
	// usable component factory.
	ErrInvalidModule = errors.New("module does not provide a component factory")
)

// ComponentFactory builds component behaviour onto upgraded elements.
type ComponentFactory = dom.ElementConstructor

// Definer is implemented by factories that register themselves under a tag
// name instead of being passed to the registry directly.
type Definer interface {
	Define(registry *dom.CustomElementRegistry, tag string) error
}

// ModuleKind classifies what a loader produced.
type ModuleKind int

const (
	// ModuleInvalid carries no factory.
	ModuleInvalid ModuleKind = iota
	// ModuleDirect is a factory returned as the module itself.
	ModuleDirect
	// ModuleDefault is a module whose default export is the factory.
	ModuleDefault
)

// String returns the string representation of the module kind
func (k ModuleKind) String() string {
	switch k {
	case ModuleDirect:
		return "direct"
	case ModuleDefault:
		return "default"
	default:
		return "invalid"
	}
}

// Module is the result of a Loader.
type Module struct {
	Kind    ModuleKind
	Factory ComponentFactory
}

// Direct wraps a factory returned as the module itself.
func Direct(factory ComponentFactory) Module {
	return Module{Kind: ModuleDirect, Factory: factory}
}

// DefaultExport wraps a factory exported as a module's default.
func DefaultExport(factory ComponentFactory) Module {
	return Module{Kind: ModuleDefault, Factory: factory}
}

// Invalid is a module with nothing to register.
func Invalid() Module {
	return Module{Kind: ModuleInvalid}
}

// Resolve returns the module's factory or ErrInvalidModule.
func (m Module) Resolve() (ComponentFactory, error) {
	switch m.Kind {
	case ModuleDirect, ModuleDefault:
		if m.Factory != nil {
			return m.Factory, nil
		}
	}
	return nil, ErrInvalidModule
}

// Loader fetches a component implementation. It runs off the event loop and
// may block.
type Loader func(ctx context.Context) (Module, error)
