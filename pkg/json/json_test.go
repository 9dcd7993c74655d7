package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_PutAndGet(t *testing.T) {
	f := NewFactory()

	inner := f.NewObject().PutString("k", "v")
	list := f.NewArray().AddInt(1).AddString("two")

	o := f.NewObject().
		PutBool("b", true).
		PutInt("i", 42).
		PutFloat("f", 1.5).
		PutString("s", "hello").
		PutObject("o", inner).
		PutArray("a", list)

	b, err := o.GetBool("b")
	require.NoError(t, err)
	assert.True(t, b)

	i, err := o.GetInt("i")
	require.NoError(t, err)
	assert.Equal(t, 42, i)

	fl, err := o.GetFloat("f")
	require.NoError(t, err)
	assert.Equal(t, 1.5, fl)

	// ints widen to float
	fl, err = o.GetFloat("i")
	require.NoError(t, err)
	assert.Equal(t, 42.0, fl)

	s, err := o.GetString("s")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	got, err := o.GetObject("o")
	require.NoError(t, err)
	v, err := got.GetString("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	arr, err := o.GetArray("a")
	require.NoError(t, err)
	assert.Equal(t, 2, arr.Len())

	assert.Equal(t, []string{"b", "i", "f", "s", "o", "a"}, o.Keys())
	assert.Equal(t, `{"b":true,"i":42,"f":1.5,"s":"hello","o":{"k":"v"},"a":[1,"two"]}`, o.String())
}

func TestObject_Errors(t *testing.T) {
	o := NewFactory().NewObject().PutString("s", "x").PutFloat("f", 2.5)

	_, err := o.GetString("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = o.GetInt("s")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = o.GetInt("f")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = o.GetObject("s")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = o.GetArray("s")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = o.GetBool("s")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestObject_PutClobbersAndKeepsOrder(t *testing.T) {
	o := NewFactory().NewObject().
		PutInt("a", 1).
		PutInt("b", 2).
		PutString("a", "again")

	assert.Equal(t, `{"a":"again","b":2}`, o.String())

	o.Remove("a")
	assert.False(t, o.Has("a"))
	assert.Equal(t, `{"b":2}`, o.String())
}

func TestArray(t *testing.T) {
	f := NewFactory()
	a := f.NewArray().
		AddBool(false).
		AddInt(7).
		AddFloat(0.25).
		AddString("s").
		AddObject(f.NewObject()).
		AddArray(f.NewArray())

	assert.Equal(t, 6, a.Len())
	assert.Equal(t, `[false,7,0.25,"s",{},[]]`, a.String())

	b, err := a.GetBool(0)
	require.NoError(t, err)
	assert.False(t, b)

	i, err := a.GetInt(1)
	require.NoError(t, err)
	assert.Equal(t, 7, i)

	_, err = a.GetString(1)
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = a.GetString(6)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = a.GetString(-1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParse(t *testing.T) {
	f := NewFactory()

	v, err := f.Parse(`{"z":1,"a":{"n":[1,2.5,"x",true,null]},"big":12345678901}`)
	require.NoError(t, err)

	o, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "big"}, o.Keys())

	big, err := o.GetFloat("big")
	require.NoError(t, err)
	assert.Equal(t, 12345678901.0, big)

	inner, err := o.GetObject("a")
	require.NoError(t, err)
	n, err := inner.GetArray("n")
	require.NoError(t, err)
	assert.Equal(t, 5, n.Len())

	_, err = n.GetInt(1)
	assert.ErrorIs(t, err, ErrWrongType, "2.5 is not an int")

	fl, err := n.GetFloat(1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, fl)

	_, err = n.GetString(4)
	assert.ErrorIs(t, err, ErrWrongType, "null is not a string")

	// Round trip keeps order and numbers verbatim.
	assert.Equal(t, `{"z":1,"a":{"n":[1,2.5,"x",true,null]},"big":12345678901}`, o.String())

	v, err = f.Parse(` [ ] `)
	require.NoError(t, err)
	_, ok = v.(Array)
	assert.True(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	f := NewFactory()

	for _, text := range []string{``, `"str"`, `42`, `{"a":`, `{} {}`, `[1,]`} {
		_, err := f.Parse(text)
		assert.Error(t, err, "text %q", text)
	}
}
