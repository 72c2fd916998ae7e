package main

import (
	"sync"

	"github.com/ptolemy-maps/ptolemy/pkg/fetch"
)

func NewFetchers() *Fetchers {
	return &Fetchers{
		data: sync.Map{},
	}
}

// Fetchers holds one fetcher per registry server, swapped wholesale on
// registry reload.
type Fetchers struct {
	data sync.Map
}

func (h *Fetchers) Clear() {
	h.data.Range(func(key, _ any) bool {
		h.data.Delete(key)
		return true
	})
}

func (h *Fetchers) Get(key string) (*fetch.Fetcher, bool) {
	if v, ok := h.data.Load(key); ok {
		if f, ok1 := v.(*fetch.Fetcher); ok1 {
			return f, true
		}
	}

	return nil, false
}

func (h *Fetchers) Add(f *fetch.Fetcher) {
	if f == nil {
		return
	}

	h.data.Store(f.Server().GetKey(), f)
}

func (h *Fetchers) All(fn func(f *fetch.Fetcher) bool) {
	h.data.Range(func(_, value any) bool {
		if f, ok := value.(*fetch.Fetcher); ok {
			return fn(f)
		}

		return true
	})
}
