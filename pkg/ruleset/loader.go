package ruleset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNotLoaded is returned when the dataset is requested before a load has
// succeeded.
var ErrNotLoaded = errors.New("dataset not loaded")

// LoadState is the observable state of a Loader.
type LoadState string

const (
	// StatePending means no load has completed yet.
	StatePending LoadState = "pending"

	// StateReady means the latest applied load succeeded.
	StateReady LoadState = "ready"

	// StateFailed means the latest applied load failed.
	StateFailed LoadState = "failed"
)

// FetchFunc produces a dataset, typically by reading a snapshot or parsing a
// source file.
type FetchFunc func(ctx context.Context) (*Dataset, error)

// FileFetcher returns a FetchFunc that reads the snapshot at path.
func FileFetcher(path string) FetchFunc {
	return func(ctx context.Context) (*Dataset, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return LoadSnapshot(path)
	}
}

// Status describes the loader at a point in time.
type Status struct {
	State      LoadState `json:"state"`
	Generation string    `json:"generation,omitempty"`
	Version    string    `json:"version,omitempty"`
	Entities   int       `json:"entities"`
	Error      string    `json:"error,omitempty"`
}

// Loader owns the runtime dataset. Every load carries a generation id; a
// load that finishes after a newer one has already been applied is
// discarded. A reload of a ready loader keeps serving the current dataset
// until the new one is applied.
type Loader struct {
	mu    sync.RWMutex
	fetch FetchFunc

	state      LoadState
	dataset    *Dataset
	selector   *Selector
	err        error
	generation string

	started uint64
	applied uint64
}

// NewLoader creates a loader in the pending state.
func NewLoader(fetch FetchFunc) *Loader {
	return &Loader{
		fetch: fetch,
		state: StatePending,
	}
}

// Load fetches a dataset and applies it unless a newer load has completed
// first. The fetch error is returned even when the result is discarded.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	l.mu.Lock()
	l.started++
	seq := l.started
	l.mu.Unlock()

	generation := uuid.NewString()
	logger := log.With().Str("generation", generation).Logger()
	logger.Debug().Msg("load started")

	dataset, err := l.fetch(ctx)
	if err == nil && dataset.Len() == 0 {
		err = ErrEmptySnapshot
	}
	if err == nil {
		dataset.EnsureIndex()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if seq < l.applied {
		logger.Debug().Uint64("seq", seq).Uint64("applied", l.applied).Msg("discarding stale load")
		if err != nil {
			return nil, fmt.Errorf("stale load failed: %w", err)
		}
		return dataset, nil
	}

	l.applied = seq
	l.generation = generation
	if err != nil {
		l.state = StateFailed
		l.dataset = nil
		l.selector = nil
		l.err = err
		logger.Warn().Err(err).Msg("load failed")
		return nil, fmt.Errorf("loading dataset: %w", err)
	}

	l.state = StateReady
	l.dataset = dataset
	l.selector = NewSelector(dataset)
	l.err = nil
	logger.Info().
		Str("version", dataset.Version).
		Int("entities", dataset.Len()).
		Msg("dataset loaded")
	return dataset, nil
}

// LoadAsync runs Load in a goroutine. The channel receives the result error
// and is then closed.
func (l *Loader) LoadAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := l.Load(ctx)
		done <- err
	}()
	return done
}

// State returns the current load state.
func (l *Loader) State() LoadState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the error of the latest applied load, if it failed.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Dataset returns the loaded dataset or ErrNotLoaded.
func (l *Loader) Dataset() (*Dataset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != StateReady {
		if l.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotLoaded, l.err)
		}
		return nil, ErrNotLoaded
	}
	return l.dataset, nil
}

// Selector returns a selector over the loaded dataset. Outside the ready
// state it returns a selector that reports no data.
func (l *Loader) Selector() *Selector {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != StateReady || l.selector == nil {
		return NewSelector(nil)
	}
	return l.selector
}

// Status returns a snapshot of the loader state.
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	status := Status{
		State:      l.state,
		Generation: l.generation,
		Entities:   l.dataset.Len(),
	}
	if l.dataset != nil {
		status.Version = l.dataset.Version
	}
	if l.err != nil {
		status.Error = l.err.Error()
	}
	return status
}
