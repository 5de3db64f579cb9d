package cache

import (
	"context"
	"sync/atomic"
)

type MetricsSnapshot struct {
	FrontHits      uint64
	FrontMisses    uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
	FrontFillErr   uint64
}

type metrics struct {
	frontHits      atomic.Uint64
	frontMisses    atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
	frontFillErr   atomic.Uint64
}

func (m *metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FrontHits:      m.frontHits.Load(),
		FrontMisses:    m.frontMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
		FrontFillErr:   m.frontFillErr.Load(),
	}
}

// Layered keeps a fast front store in front of a durable origin: reads
// fill the front on a miss, writes and deletes go to both.
type Layered struct {
	front   Store
	origin  Store
	metrics metrics
}

func NewLayered(front, origin Store) *Layered {
	return &Layered{front: front, origin: origin}
}

func (l *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if raw, ok, err := l.front.Get(ctx, key); err == nil && ok {
		l.metrics.frontHits.Add(1)
		return raw, true, nil
	}
	l.metrics.frontMisses.Add(1)
	l.metrics.originReads.Add(1)

	raw, ok, err := l.origin.Get(ctx, key)
	if err != nil {
		l.metrics.originReadErr.Add(1)
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if err := l.front.Put(ctx, key, raw); err != nil {
		l.metrics.frontFillErr.Add(1)
	}
	return raw, true, nil
}

func (l *Layered) Put(ctx context.Context, key string, value []byte) error {
	l.metrics.originWrites.Add(1)
	if err := l.origin.Put(ctx, key, value); err != nil {
		l.metrics.originWriteErr.Add(1)
		return err
	}
	return l.front.Put(ctx, key, value)
}

func (l *Layered) Delete(ctx context.Context, key string) error {
	l.metrics.originWrites.Add(1)
	if err := l.origin.Delete(ctx, key); err != nil {
		l.metrics.originWriteErr.Add(1)
		return err
	}
	return l.front.Delete(ctx, key)
}

func (l *Layered) Metrics() MetricsSnapshot {
	if l == nil {
		return MetricsSnapshot{}
	}
	return l.metrics.snapshot()
}
