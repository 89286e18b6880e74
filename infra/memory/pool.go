// Package memory holds allocation helpers for the hot submit path.
package memory

import "sync"

// Pool is a typed object pool. The service recycles order structs
// through it once they reach a terminal state.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

// Put returns v to the pool. The caller must not retain v; the
// service zeroes it first so a recycled struct never leaks fields.
func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}
