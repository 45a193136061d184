package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueuePushPop(t *testing.T) {
	q := New[int](4)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 4, q.Cap())

	for i := 0; i < 4; i++ {
		assert.NoError(t, q.Push(i))
	}
	assert.Equal(t, 4, q.Len())
	assert.ErrorIs(t, q.Push(99), ErrIsFull)

	for i := 0; i < 4; i++ {
		v, err := q.Pop()
		assert.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrIsEmpty)
}

func TestQueueWrapAround(t *testing.T) {
	q := New[string](2)
	assert.NoError(t, q.Push("a"))
	assert.NoError(t, q.Push("b"))

	v, err := q.Pop()
	assert.NoError(t, err)
	assert.Equal(t, "a", v)

	// 写指针回绕到切片头部。
	assert.NoError(t, q.Push("c"))
	assert.Equal(t, 2, q.Len())

	v, err = q.Peek()
	assert.NoError(t, err)
	assert.Equal(t, "b", v)

	v, _ = q.Pop()
	assert.Equal(t, "b", v)
	v, _ = q.Pop()
	assert.Equal(t, "c", v)
	assert.True(t, q.IsEmpty())
}

func TestQueueSizeRounding(t *testing.T) {
	assert.Equal(t, DefaultQueueSize, New[int](0).Cap())
	assert.Equal(t, 8, New[int](5).Cap())
	assert.Equal(t, 16, New[int](16).Cap())
}
