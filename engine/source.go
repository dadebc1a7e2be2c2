package engine

import (
	"context"
	"io"
	"sync"
)

// StreamFilter gives access to a response body while it flows to its
// consumer. Every chunk read with Next must be written back with Write for
// the consumer to receive it.
type StreamFilter interface {
	// Next returns the next chunk, or io.EOF once the body is complete.
	Next(ctx context.Context) ([]byte, error)
	Write(chunk []byte) error
	// Disconnect hands the rest of the exchange back to the consumer.
	Disconnect() error
}

// Exchange is one captured request/response pair.
type Exchange struct {
	ID            string
	URL           string
	Method        string
	Type          string
	TabID         int
	Referer       string
	CookieStoreID string

	// Open starts filtering the response body. It is only called for
	// exchanges that matched a rule; unopened exchanges pass through.
	Open func() (StreamFilter, error)
}

// Handler is called by a Source for every exchange, on the capture path.
type Handler func(ex *Exchange)

// Source delivers exchanges to one attached handler at a time.
type Source interface {
	Attach(h Handler) error
	Detach() error
}

// MemorySource is a Source fed by Deliver, used to run extractors against
// bodies that did not come from a browser.
type MemorySource struct {
	mu      sync.Mutex
	handler Handler
}

func NewMemorySource() *MemorySource { return &MemorySource{} }

func (s *MemorySource) Attach(h Handler) error {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	return nil
}

func (s *MemorySource) Detach() error {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	return nil
}

// Deliver hands ex to the attached handler and reports whether one was
// attached. The handler runs on the caller's goroutine.
func (s *MemorySource) Deliver(ex *Exchange) bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(ex)
	return true
}

// BodyFilter is a StreamFilter over an in-memory body split into chunks.
// Written chunks are collected in Written.
type BodyFilter struct {
	mu           sync.Mutex
	chunks       [][]byte
	Written      [][]byte
	Disconnected bool
}

// NewBodyFilter returns a filter yielding chunks in order.
func NewBodyFilter(chunks ...[]byte) *BodyFilter {
	return &BodyFilter{chunks: chunks}
}

func (f *BodyFilter) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chunks) == 0 {
		return nil, io.EOF
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c, nil
}

func (f *BodyFilter) Write(chunk []byte) error {
	f.mu.Lock()
	f.Written = append(f.Written, chunk)
	f.mu.Unlock()
	return nil
}

func (f *BodyFilter) Disconnect() error {
	f.mu.Lock()
	f.Disconnected = true
	f.mu.Unlock()
	return nil
}
