// Package variable implements the named, typed accessor registry described
// in spec.md §4.1. A Variable reads a numeric value off whatever row is
// currently bound in a rowsource.Cursor; the registry enforces unique names
// and turns a lookup of an unregistered name into a fatal error.
package variable

import (
	"fmt"

	"github.com/kgregersen/reweighter/internal/errkind"
)

// Cursor is the minimal row-positioning contract a Variable needs. It is
// satisfied by rowsource.Cursor; kept separate here so this package does not
// import rowsource (which in turn may depend on variable for its column
// binding helpers).
type Cursor interface {
	Float(name string) (float64, error)
}

// Variable is a named extractor over the row currently bound in a Cursor.
type Variable struct {
	name string
}

// Name returns the variable's registered name.
func (v *Variable) Name() string { return v.name }

// Value reads the variable's value for the row currently positioned in cur.
func (v *Variable) Value(cur Cursor) (float64, error) {
	val, err := cur.Float(v.name)
	if err != nil {
		return 0, errkind.Wrap(errkind.Data, "variable", fmt.Errorf("%q: %w", v.name, err))
	}
	return val, nil
}

// Registry is the process-wide (or test-local) set of registered variables.
// Names are unique; registering the same name twice is an error.
type Registry struct {
	order []string
	byName map[string]*Variable
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Variable)}
}

// Register adds a new variable, returning an error if the name already exists.
func (r *Registry) Register(name string) (*Variable, error) {
	if _, exists := r.byName[name]; exists {
		return nil, errkind.New(errkind.Config, "variable", "%q already registered", name)
	}
	v := &Variable{name: name}
	r.byName[name] = v
	r.order = append(r.order, name)
	return v, nil
}

// Get returns the variable registered under name; failure is fatal per
// spec.md §4.1 ("reading a variable not registered is fatal").
func (r *Registry) Get(name string) (*Variable, error) {
	v, ok := r.byName[name]
	if !ok {
		return nil, errkind.New(errkind.Config, "variable", "%q is not registered", name)
	}
	return v, nil
}

// MustGet is like Get but panics on failure.
func (r *Registry) MustGet(name string) *Variable {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Names returns the registered variable names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered variables.
func (r *Registry) Len() int {
	return len(r.order)
}
