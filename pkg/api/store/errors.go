package store

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors returned by run operations, mapped to HTTP statuses by
// the API layer.
var (
	// ErrRunNotFound indicates the referenced run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrNotCorrectable indicates a correction was attempted on a run
	// whose status is not ERROR.
	ErrNotCorrectable = errors.New("only failed runs can be corrected")

	// ErrCorrectionInFlight indicates another correction for the same run
	// is still being applied.
	ErrCorrectionInFlight = errors.New("correction already in progress")

	// ErrPersistence wraps database failures so callers can distinguish
	// storage trouble from domain rejections.
	ErrPersistence = errors.New("persistence failure")
)

func wrapPersistence(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// correctionGuard serializes correction applies per run ID across
// concurrent API requests.
type correctionGuard struct {
	mu       sync.Mutex
	inFlight map[uint]struct{}
}

func newCorrectionGuard() *correctionGuard {
	return &correctionGuard{
		inFlight: make(map[uint]struct{}),
	}
}

// acquire reserves the run ID, returning false if already held.
func (g *correctionGuard) acquire(id uint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inFlight[id]; held {
		return false
	}

	g.inFlight[id] = struct{}{}

	return true
}

func (g *correctionGuard) release(id uint) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, id)
}
