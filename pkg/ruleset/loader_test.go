package ruleset

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchReply struct {
	dataset *Dataset
	err     error
}

// gatedFetcher hands each call its own reply channel so tests control the
// order in which concurrent loads finish.
type gatedFetcher struct {
	mu      sync.Mutex
	calls   int
	replies []chan fetchReply
	entered chan int
}

func newGatedFetcher(calls int) *gatedFetcher {
	f := &gatedFetcher{entered: make(chan int, calls)}
	for i := 0; i < calls; i++ {
		f.replies = append(f.replies, make(chan fetchReply, 1))
	}
	return f
}

func (f *gatedFetcher) fetch(ctx context.Context) (*Dataset, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	f.entered <- call
	select {
	case reply := <-f.replies[call]:
		return reply.dataset, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func versioned(version string) *Dataset {
	dataset := combatDataset()
	dataset.Version = version
	return dataset
}

func waitEntered(t *testing.T, f *gatedFetcher) int {
	t.Helper()
	select {
	case call := <-f.entered:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("fetch was not called")
		return -1
	}
}

func TestLoaderPendingState(t *testing.T) {
	loader := NewLoader(func(context.Context) (*Dataset, error) { return combatDataset(), nil })

	assert.Equal(t, StatePending, loader.State())
	_, err := loader.Dataset()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, loader.Selector().HasData())
	assert.Equal(t, Status{State: StatePending}, loader.Status())
}

func TestLoaderReady(t *testing.T) {
	loader := NewLoader(func(context.Context) (*Dataset, error) { return combatDataset(), nil })

	dataset, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, dataset.Len())

	assert.Equal(t, StateReady, loader.State())
	assert.NoError(t, loader.Err())
	assert.True(t, loader.Selector().HasData())

	status := loader.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, 3, status.Entities)
	assert.NotEmpty(t, status.Generation)
}

func TestLoaderFailed(t *testing.T) {
	transport := errors.New("connection refused")
	loader := NewLoader(func(context.Context) (*Dataset, error) { return nil, transport })

	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, transport)
	assert.Equal(t, StateFailed, loader.State())
	assert.ErrorIs(t, loader.Err(), transport)

	_, err = loader.Dataset()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Empty(t, loader.Selector().TopLevelSections())
	assert.Equal(t, "connection refused", loader.Status().Error)
}

func TestLoaderEmptyDatasetFails(t *testing.T) {
	loader := NewLoader(func(context.Context) (*Dataset, error) { return &Dataset{}, nil })

	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, ErrEmptySnapshot)
	assert.Equal(t, StateFailed, loader.State())
}

func TestLoaderFailureAfterReadyClearsData(t *testing.T) {
	fail := false
	loader := NewLoader(func(context.Context) (*Dataset, error) {
		if fail {
			return nil, errors.New("gone")
		}
		return combatDataset(), nil
	})

	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = loader.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, loader.State())
	assert.False(t, loader.Selector().HasData())

	fail = false
	_, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, loader.State())
	assert.NoError(t, loader.Err())
}

func TestLoaderRebuildsIndex(t *testing.T) {
	loader := NewLoader(func(context.Context) (*Dataset, error) {
		dataset := combatDataset()
		dataset.Index = nil
		return dataset, nil
	})

	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	entity, ok := loader.Selector().ByID("100.2")
	require.True(t, ok)
	assert.Equal(t, "100", entity.ParentID)
}

func TestLoaderDiscardsStaleLoad(t *testing.T) {
	fetcher := newGatedFetcher(2)
	loader := NewLoader(fetcher.fetch)
	ctx := context.Background()

	first := loader.LoadAsync(ctx)
	require.Equal(t, 0, waitEntered(t, fetcher))
	second := loader.LoadAsync(ctx)
	require.Equal(t, 1, waitEntered(t, fetcher))

	fetcher.replies[1] <- fetchReply{dataset: versioned("new")}
	require.NoError(t, <-second)
	assert.Equal(t, "new", loader.Status().Version)

	fetcher.replies[0] <- fetchReply{dataset: versioned("old")}
	require.NoError(t, <-first)

	assert.Equal(t, StateReady, loader.State())
	assert.Equal(t, "new", loader.Status().Version)
	assert.Equal(t, "new", loader.Selector().Version())
}

func TestLoaderStaleFailureKeepsReadyState(t *testing.T) {
	fetcher := newGatedFetcher(2)
	loader := NewLoader(fetcher.fetch)
	ctx := context.Background()

	first := loader.LoadAsync(ctx)
	waitEntered(t, fetcher)
	second := loader.LoadAsync(ctx)
	waitEntered(t, fetcher)

	fetcher.replies[1] <- fetchReply{dataset: versioned("new")}
	require.NoError(t, <-second)

	fetcher.replies[0] <- fetchReply{err: errors.New("timed out")}
	assert.Error(t, <-first)

	assert.Equal(t, StateReady, loader.State())
	assert.NoError(t, loader.Err())
}

func TestLoaderKeepsServingDuringReload(t *testing.T) {
	fetcher := newGatedFetcher(2)
	loader := NewLoader(fetcher.fetch)
	ctx := context.Background()

	initial := loader.LoadAsync(ctx)
	waitEntered(t, fetcher)
	fetcher.replies[0] <- fetchReply{dataset: versioned("v1")}
	require.NoError(t, <-initial)

	reload := loader.LoadAsync(ctx)
	waitEntered(t, fetcher)
	assert.Equal(t, "v1", loader.Selector().Version())

	fetcher.replies[1] <- fetchReply{dataset: versioned("v2")}
	require.NoError(t, <-reload)
	assert.Equal(t, "v2", loader.Selector().Version())
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, SaveSnapshot(path, combatDataset(), SnapshotOptions{OmitIndex: true}))

	loader := NewLoader(FileFetcher(path))
	_, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loader.Selector().Children("100"), 2)

	missing := NewLoader(FileFetcher(filepath.Join(t.TempDir(), "missing.json")))
	_, err = missing.Load(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateFailed, missing.State())
}

func TestFileFetcherHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FileFetcher("unused.json")(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
