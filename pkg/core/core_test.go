package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOnce(t *testing.T) {
	w := NewWriteOnce[int]("Answer")

	_, ok := w.Get()
	assert.False(t, ok)
	assert.PanicsWithValue(t, "Answer should be initialized before get", func() { w.MustGet() })

	require.NoError(t, w.Set(42))
	assert.Equal(t, 42, w.MustGet())

	err := w.Set(7)
	assert.ErrorIs(t, err, ErrAlreadySet)
	assert.Equal(t, 42, w.MustGet())
}

func TestSerialDispatcher_RunsInOrder(t *testing.T) {
	d := NewSerialDispatcher()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.Dispatch(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.Close()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerialDispatcher_DropsAfterClose(t *testing.T) {
	d := NewSerialDispatcher()
	d.Close()

	called := false
	d.Dispatch(func() { called = true })
	d.Close()

	assert.False(t, called)
}

func TestImmediate(t *testing.T) {
	called := false
	Immediate.Dispatch(func() { called = true })
	assert.True(t, called)
}
