package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects applied writes and can fail the first N attempts.
type recorder struct {
	mu      sync.Mutex
	applied []string
	failN   int
}

func (r *recorder) write(name string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.failN > 0 {
			r.failN--
			return errors.New("database is locked")
		}
		r.applied = append(r.applied, name)
		return nil
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

func TestPersistenceManager_FlushKeepsOrder(t *testing.T) {
	rec := &recorder{}
	pm := NewPersistenceManager(10)
	pm.Enqueue("event", rec.write("a"))
	pm.Enqueue("decision", rec.write("b"))
	pm.Enqueue("profile", rec.write("c"))

	require.NoError(t, pm.Flush(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, rec.snapshot())
	assert.Zero(t, pm.Pending())
	assert.False(t, pm.Degraded())
}

func TestPersistenceManager_FailureMarksDegraded(t *testing.T) {
	rec := &recorder{failN: 1}
	pm := NewPersistenceManager(10)
	pm.Enqueue("event", rec.write("a"))

	err := pm.Flush(context.Background())
	assert.Error(t, err)
	assert.True(t, pm.Degraded())
	assert.Equal(t, 1, pm.Pending())

	require.NoError(t, pm.Flush(context.Background()))
	assert.False(t, pm.Degraded())
	assert.Equal(t, []string{"a"}, rec.snapshot())
}

func TestPersistenceManager_RetriesWithBackoff(t *testing.T) {
	rec := &recorder{failN: 3}
	pm := NewPersistenceManager(10)
	pm.SetBackoff(5*time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pm.Start(ctx)

	pm.Enqueue("event", rec.write("a"))
	pm.Enqueue("event", rec.write("b"))

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, rec.snapshot())
	assert.Eventually(t, func() bool { return !pm.Degraded() }, time.Second, 10*time.Millisecond)
}

func TestPersistenceManager_DropsWhenFull(t *testing.T) {
	rec := &recorder{}
	pm := NewPersistenceManager(2)
	pm.Enqueue("event", rec.write("a"))
	pm.Enqueue("event", rec.write("b"))
	pm.Enqueue("event", rec.write("c"))

	assert.Equal(t, int64(1), pm.Dropped())
	require.NoError(t, pm.Flush(context.Background()))
	assert.Equal(t, []string{"a", "b"}, rec.snapshot())
}

func TestBackoff(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	assert.Equal(t, 100*time.Millisecond, backoff(base, max, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(base, max, 2))
	assert.Equal(t, 800*time.Millisecond, backoff(base, max, 4))
	assert.Equal(t, time.Second, backoff(base, max, 10))
}
