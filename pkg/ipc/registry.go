package ipc

import (
	"context"
	"fmt"
	"strings"
)

// FunctionHandler executes a registered function on behalf of clientID.
type FunctionHandler func(ctx context.Context, clientID int64, args []Value) ([]Value, error)

// Function is a named, type-signature-disambiguated entry point. Functions are
// immutable once registered.
type Function struct {
	name    string
	params  []Type
	handler FunctionHandler
}

func NewFunction(name string, params []Type, handler FunctionHandler) *Function {
	ps := make([]Type, len(params))
	copy(ps, params)
	return &Function{
		name:    name,
		params:  ps,
		handler: handler,
	}
}

func (f *Function) Name() string {
	return f.name
}

func (f *Function) Params() []Type {
	ps := make([]Type, len(f.params))
	copy(ps, f.params)
	return ps
}

// UniqueName identifies the function within its collection.
func (f *Function) UniqueName() string {
	return uniqueName(f.name, f.params)
}

func (f *Function) Call(ctx context.Context, clientID int64, args []Value) ([]Value, error) {
	return f.handler(ctx, clientID, args)
}

func (f *Function) String() string {
	names := make([]string, len(f.params))
	for i, p := range f.params {
		names[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", f.name, strings.Join(names, ", "))
}

// uniqueName joins the name and raw type tags with a separator that cannot
// appear in a tag.
func uniqueName(name string, params []Type) string {
	var sb strings.Builder
	sb.Grow(len(name) + 1 + len(params))
	sb.WriteString(name)
	sb.WriteByte(0xff)
	for _, p := range params {
		sb.WriteByte(byte(p))
	}
	return sb.String()
}

// Collection is a named namespace of functions. Registration is not safe for
// concurrent use; collections are filled in before the server starts and only
// read afterwards.
type Collection struct {
	name      string
	functions map[string]*Function
	order     []*Function
}

func NewCollection(name string) *Collection {
	return &Collection{
		name:      name,
		functions: make(map[string]*Function),
	}
}

func (c *Collection) Name() string {
	return c.name
}

// RegisterFunction fails if a function with the same name and parameter types
// already exists. Overloads by type are allowed.
func (c *Collection) RegisterFunction(fn *Function) error {
	id := fn.UniqueName()
	if _, ok := c.functions[id]; ok {
		return fmt.Errorf("%w: %s::%s", ErrDuplicateFunction, c.name, fn)
	}
	c.functions[id] = fn
	c.order = append(c.order, fn)
	return nil
}

// Register is shorthand for RegisterFunction(NewFunction(...)).
func (c *Collection) Register(name string, params []Type, handler FunctionHandler) error {
	return c.RegisterFunction(NewFunction(name, params, handler))
}

// Lookup matches the exact type signature, without coercion.
func (c *Collection) Lookup(name string, params []Type) (*Function, bool) {
	fn, ok := c.functions[uniqueName(name, params)]
	return fn, ok
}

func (c *Collection) LookupArgs(name string, args []Value) (*Function, bool) {
	return c.Lookup(name, TypesOf(args))
}

// Functions lists the functions in registration order.
func (c *Collection) Functions() []*Function {
	fns := make([]*Function, len(c.order))
	copy(fns, c.order)
	return fns
}
