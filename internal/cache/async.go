package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type opKind int

const (
	opPut opKind = iota
	opDelete
	opBarrier
)

type op struct {
	kind    opKind
	key     string
	value   []byte
	reached chan struct{}
}

// Async queues writes to a Store and applies them on a background
// goroutine. Put and Delete never block the caller; when the queue is full
// the write is dropped and logged.
type Async struct {
	store   Store
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan op
	done   chan struct{}
}

type AsyncConfig struct {
	QueueSize int
	// Timeout bounds a single backend write.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewAsync starts the writer. A nil store yields a writer that discards.
func NewAsync(store Store, cfg AsyncConfig) *Async {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Async{
		store:   store,
		log:     cfg.Logger,
		timeout: cfg.Timeout,
		queue:   make(chan op, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Store returns the backend the writer applies to.
func (a *Async) Store() Store {
	if a == nil {
		return nil
	}
	return a.store
}

func (a *Async) Put(key string, value []byte) {
	a.enqueue(op{kind: opPut, key: key, value: append([]byte(nil), value...)})
}

func (a *Async) Delete(key string) {
	a.enqueue(op{kind: opDelete, key: key})
}

func (a *Async) enqueue(o op) {
	if a == nil || a.store == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- o:
	default:
		a.log.Warn("cache: write queue full, dropping", "key", o.key)
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for o := range a.queue {
		if o.kind == opBarrier {
			close(o.reached)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		var err error
		switch o.kind {
		case opPut:
			err = a.store.Put(ctx, o.key, o.value)
		case opDelete:
			err = a.store.Delete(ctx, o.key)
		}
		cancel()
		if err != nil {
			a.log.Warn("cache: async write failed", "key", o.key, "error", err)
		}
	}
}

// Flush blocks until every write queued before the call has been applied.
func (a *Async) Flush(ctx context.Context) error {
	if a == nil || a.store == nil {
		return nil
	}
	reached := make(chan struct{})
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return nil
	}
	select {
	case a.queue <- op{kind: opBarrier, reached: reached}:
		a.mu.RUnlock()
	case <-ctx.Done():
		a.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting writes and waits for the queue to drain.
func (a *Async) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}
