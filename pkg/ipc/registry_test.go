package ipc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constHandler(values ...Value) FunctionHandler {
	return func(ctx context.Context, clientID int64, args []Value) ([]Value, error) {
		return values, nil
	}
}

func TestCollectionOverloads(t *testing.T) {

	c := NewCollection("math")
	require.NoError(t, c.Register("add", []Type{TypeInt32, TypeInt32}, constHandler(Int32(1))))
	require.NoError(t, c.Register("add", []Type{TypeDouble, TypeDouble}, constHandler(Double(1))))
	require.NoError(t, c.Register("add", nil, constHandler(Null(""))))

	fn, ok := c.Lookup("add", []Type{TypeDouble, TypeDouble})
	require.True(t, ok)
	values, err := fn.Call(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []Value{Double(1)}, values)

	fn, ok = c.LookupArgs("add", []Value{Int32(1), Int32(2)})
	require.True(t, ok)
	assert.Equal(t, "add(int32, int32)", fn.String())

	_, ok = c.LookupArgs("add", nil)
	assert.True(t, ok)

	// no coercion between integer widths
	_, ok = c.LookupArgs("add", []Value{Int64(1), Int64(2)})
	assert.False(t, ok)

	_, ok = c.Lookup("sub", nil)
	assert.False(t, ok)

	names := []string{}
	for _, fn := range c.Functions() {
		names = append(names, fn.String())
	}
	assert.Equal(t, []string{"add(int32, int32)", "add(double, double)", "add()"}, names)
}

func TestCollectionDuplicate(t *testing.T) {

	c := NewCollection("math")
	require.NoError(t, c.Register("add", []Type{TypeInt32}, constHandler()))

	err := c.Register("add", []Type{TypeInt32}, constHandler())
	assert.ErrorIs(t, err, ErrDuplicateFunction)
	assert.Len(t, c.Functions(), 1)
}

func TestUniqueNameNoCollisions(t *testing.T) {

	// a name ending in a byte equal to a tag must not collide with a shorter
	// name plus that parameter
	a := NewFunction("f\x01", nil, nil)
	b := NewFunction("f", []Type{TypeInt32}, nil)
	assert.NotEqual(t, a.UniqueName(), b.UniqueName())
}

func TestFunctionParamsCopied(t *testing.T) {

	params := []Type{TypeString}
	fn := NewFunction("echo", params, nil)
	params[0] = TypeBinary

	got := fn.Params()
	assert.Equal(t, []Type{TypeString}, got)

	got[0] = TypeNull
	assert.Equal(t, []Type{TypeString}, fn.Params())
}
