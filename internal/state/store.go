// Package state holds the process-wide result of the startup pipeline.
//
// A Store moves from Uninitialized to Ready exactly once. Readers observe
// either nothing or the complete published value, never a partial write.
package state

import (
	"errors"
	"sync/atomic"

	emberrors "github.com/23skdu/embedview/internal/errors"
)

// Phase is the lifecycle position of a Store.
type Phase int32

const (
	Uninitialized Phase = iota
	Ready
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "READY"
	default:
		return "UNINITIALIZED"
	}
}

var (
	// ErrAlreadyPublished is returned by a second Publish.
	ErrAlreadyPublished = errors.New("state already published")
	// ErrNilValue is returned when publishing nil.
	ErrNilValue = errors.New("cannot publish nil state")
)

// Store is an immutable-once container, safe for concurrent use.
type Store[T any] struct {
	value atomic.Pointer[T]
}

// NewStore returns an Uninitialized store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{}
}

// Publish installs v and moves the store to Ready. v must not be mutated afterwards.
func (s *Store[T]) Publish(v *T) error {
	if v == nil {
		return ErrNilValue
	}
	if !s.value.CompareAndSwap(nil, v) {
		return ErrAlreadyPublished
	}
	return nil
}

// Load returns the published value, or a not_ready error before Publish.
func (s *Store[T]) Load() (*T, error) {
	v := s.value.Load()
	if v == nil {
		return nil, emberrors.NewNotReady("load_state")
	}
	return v, nil
}

// Phase reports the current lifecycle position.
func (s *Store[T]) Phase() Phase {
	if s.value.Load() == nil {
		return Uninitialized
	}
	return Ready
}

// Ready reports whether Publish has succeeded.
func (s *Store[T]) Ready() bool {
	return s.Phase() == Ready
}
