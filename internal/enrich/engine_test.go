package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postcode-etl/internal/model"
	"github.com/sells-group/postcode-etl/pkg/postcodes"
)

// fakeClient implements postcodes.Client with a pluggable lookup func and
// tracks how many lookups run concurrently.
type fakeClient struct {
	lookup func(ctx context.Context, lat, lon float64) (*postcodes.Result, error)

	calls       atomic.Int64
	mu          sync.Mutex
	inflight    int
	maxInflight int
}

func (f *fakeClient) NearestPostcode(ctx context.Context, lat, lon float64) (*postcodes.Result, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	return f.lookup(ctx, lat, lon)
}

func (f *fakeClient) maxSeen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func newTestEngine(t *testing.T, client postcodes.Client, workers int) (*Engine, *ErrorLog) {
	t.Helper()

	errlog := newTestErrorLog(t)
	return NewEngine(client, errlog, workers, 0), errlog
}

// coords returns n distinct coordinates whose lat encodes the input index.
func coords(n int) []model.Coordinate {
	cs := make([]model.Coordinate, n)
	for i := range cs {
		cs[i] = model.Coordinate{Lat: float64(i), Lon: float64(-i)}
	}
	return cs
}

func TestEnrichPreservesInputOrder(t *testing.T) {
	// The first item is the slowest; it must still land at index 0.
	client := &fakeClient{
		lookup: func(_ context.Context, lat, _ float64) (*postcodes.Result, error) {
			if lat == 0 {
				time.Sleep(50 * time.Millisecond)
			}
			return &postcodes.Result{Postcode: fmt.Sprintf("PC%d", int(lat)), Found: true}, nil
		},
	}
	engine, _ := newTestEngine(t, client, 8)

	results, err := engine.Enrich(context.Background(), coords(8))
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i, loc := range results {
		assert.Equal(t, float64(i), loc.Lat)
		assert.Equal(t, fmt.Sprintf("PC%d", i), loc.NearestPostcode)
	}
}

func TestEnrichIsolatesItemFailures(t *testing.T) {
	client := &fakeClient{
		lookup: func(_ context.Context, lat, _ float64) (*postcodes.Result, error) {
			if lat == 1 {
				return nil, fmt.Errorf("postcodes: api returned status 500")
			}
			return &postcodes.Result{Postcode: "SW1A 1AA", Found: true}, nil
		},
	}
	engine, errlog := newTestEngine(t, client, 4)

	results, err := engine.Enrich(context.Background(), coords(3))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "SW1A 1AA", results[0].NearestPostcode)
	assert.Empty(t, results[1].NearestPostcode)
	assert.Equal(t, "SW1A 1AA", results[2].NearestPostcode)

	assert.Equal(t, int64(1), errlog.Count())
	lines := readLines(t, errlog.Path())
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "1,-1,"), "line %q should carry the failing coordinate", lines[0])
	assert.Contains(t, lines[0], "status 500")
}

func TestEnrichRecordsNoCoverageMiss(t *testing.T) {
	client := &fakeClient{
		lookup: func(_ context.Context, lat, _ float64) (*postcodes.Result, error) {
			if lat == 0 {
				return &postcodes.Result{Found: false}, nil
			}
			return &postcodes.Result{Postcode: "EC1A 1BB", Found: true}, nil
		},
	}
	engine, errlog := newTestEngine(t, client, 2)

	results, err := engine.Enrich(context.Background(), coords(2))
	require.NoError(t, err)

	assert.Empty(t, results[0].NearestPostcode)
	assert.Equal(t, "EC1A 1BB", results[1].NearestPostcode)

	lines := readLines(t, errlog.Path())
	require.Len(t, lines, 1)
	assert.Equal(t, "0,0,no postcode found", lines[0])
}

func TestEnrichBoundsConcurrency(t *testing.T) {
	client := &fakeClient{
		lookup: func(_ context.Context, _, _ float64) (*postcodes.Result, error) {
			time.Sleep(5 * time.Millisecond)
			return &postcodes.Result{Postcode: "N1 9GU", Found: true}, nil
		},
	}
	engine, _ := newTestEngine(t, client, 3)

	results, err := engine.Enrich(context.Background(), coords(40))
	require.NoError(t, err)
	require.Len(t, results, 40)

	assert.Equal(t, int64(40), client.calls.Load())
	assert.LessOrEqual(t, client.maxSeen(), 3)
}

func TestEnrichLooksUpDuplicatesSeparately(t *testing.T) {
	client := &fakeClient{
		lookup: func(_ context.Context, _, _ float64) (*postcodes.Result, error) {
			return &postcodes.Result{Postcode: "SW1A 1AA", Found: true}, nil
		},
	}
	engine, _ := newTestEngine(t, client, 4)

	input := []model.Coordinate{
		{Lat: 51.5, Lon: -0.1},
		{Lat: 51.5, Lon: -0.1},
		{Lat: 51.5, Lon: -0.1},
	}
	results, err := engine.Enrich(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// One lookup per input row: the engine never deduplicates.
	assert.Equal(t, int64(3), client.calls.Load())
}

func TestEnrichEmptyInput(t *testing.T) {
	client := &fakeClient{
		lookup: func(_ context.Context, _, _ float64) (*postcodes.Result, error) {
			return &postcodes.Result{Found: true}, nil
		},
	}
	engine, _ := newTestEngine(t, client, 4)

	results, err := engine.Enrich(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, client.calls.Load())
}

func TestEnrichCancelledContext(t *testing.T) {
	client := &fakeClient{
		lookup: func(ctx context.Context, _, _ float64) (*postcodes.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	engine, errlog := newTestEngine(t, client, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Enrich(ctx, coords(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// Cancellation is a run failure, not item failures.
	assert.Zero(t, errlog.Count())
}

func TestNewEngineDefaults(t *testing.T) {
	engine := NewEngine(&fakeClient{}, newTestErrorLog(t), 0, 0)
	assert.Equal(t, DefaultWorkers, engine.workers)
	assert.Equal(t, int64(DefaultProgressEvery), engine.progressEvery)
}
