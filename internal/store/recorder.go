package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Recorder buffers results from concurrent runs and writes them in batches.
// IDs are assigned when a result is recorded, so callers can report them
// before the batch is flushed.
type Recorder struct {
	store     *Store
	mu        sync.Mutex
	buffer    []*Result
	flushSize int
	errs      error
}

// NewRecorder creates a recorder. flushSize controls how many results are
// buffered before a batch insert.
func NewRecorder(store *Store, flushSize int) *Recorder {
	if flushSize <= 0 {
		flushSize = 50
	}
	return &Recorder{
		store:     store,
		buffer:    make([]*Result, 0, flushSize),
		flushSize: flushSize,
	}
}

// Record adds a result to the buffer and flushes if the buffer is full.
func (r *Recorder) Record(ctx context.Context, res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.CreatedAt = now()
	r.buffer = append(r.buffer, res)
	if len(r.buffer) >= r.flushSize {
		r.flushLocked(ctx)
	}
}

// Flush writes any buffered results and returns every write error seen
// since the recorder was created.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked(ctx)
	return r.errs
}

func (r *Recorder) flushLocked(ctx context.Context) {
	if len(r.buffer) == 0 {
		return
	}
	batch := make([]*Result, len(r.buffer))
	copy(batch, r.buffer)
	r.buffer = r.buffer[:0]

	if err := r.store.SaveResults(ctx, batch); err != nil {
		r.errs = multierr.Append(r.errs, err)
	}
}
