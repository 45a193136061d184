// Copyright (c) 2019 The Gnet Authors. All rights reserved.
// Copyright (c) 2019 Chao yuepan, Allen Xu
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package ring 实现了一个内存高效的有界环形 FIFO 队列。
package ring

import (
	"errors"
	"math/bits"
)

// DefaultQueueSize 是环形队列的默认容量。
const DefaultQueueSize = 128

// ErrIsEmpty 表示当前环形队列为空，无法继续出队。
var ErrIsEmpty = errors.New("ring-queue is empty")

// ErrIsFull 表示当前环形队列已满，无法继续入队。
// 队列容量在创建时固定，不做动态扩容：上游应将“队列已满”视为背压信号。
var ErrIsFull = errors.New("ring-queue is full")

// Queue 是一个固定容量的环形 FIFO 队列。
type Queue[T any] struct {
	buf     []T  // 底层切片
	size    int  // 队列容量（始终为 2 的幂）
	r       int  // 下一次出队位置
	w       int  // 下一次入队位置
	isEmpty bool // r == w 时用于区分“空/满”状态
}

// New 创建一个给定容量的 Queue。
// size 会被向上取整为 2 的幂；size 小于等于 0 时使用 DefaultQueueSize。
func New[T any](size int) *Queue[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	size = ceilToPowerOfTwo(size)
	return &Queue[T]{
		buf:     make([]T, size),
		size:    size,
		isEmpty: true,
	}
}

// Push 将元素追加到队尾。
// 队列已满时返回 ErrIsFull，元素不会被写入。
func (q *Queue[T]) Push(v T) error {
	if q.r == q.w && !q.isEmpty {
		return ErrIsFull
	}
	q.buf[q.w] = v
	q.w = (q.w + 1) & (q.size - 1)
	q.isEmpty = false
	return nil
}

// Pop 取出并返回队首元素。
// 队列为空时返回 ErrIsEmpty。
func (q *Queue[T]) Pop() (T, error) {
	var zero T
	if q.isEmpty {
		return zero, ErrIsEmpty
	}
	v := q.buf[q.r]
	q.buf[q.r] = zero // 避免残留引用阻碍 GC
	q.r = (q.r + 1) & (q.size - 1)
	if q.r == q.w {
		q.isEmpty = true
	}
	return v, nil
}

// Peek 返回队首元素但不出队。
func (q *Queue[T]) Peek() (T, error) {
	var zero T
	if q.isEmpty {
		return zero, ErrIsEmpty
	}
	return q.buf[q.r], nil
}

// Len 返回当前队列中的元素个数。
func (q *Queue[T]) Len() int {
	if q.isEmpty {
		return 0
	}
	if q.w > q.r {
		return q.w - q.r
	}
	return q.size - q.r + q.w
}

// Cap 返回队列容量。
func (q *Queue[T]) Cap() int {
	return q.size
}

// IsEmpty 返回队列是否为空。
func (q *Queue[T]) IsEmpty() bool {
	return q.isEmpty
}

// ceilToPowerOfTwo 将 n 向上取整为 2 的幂。
func ceilToPowerOfTwo(n int) int {
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}
