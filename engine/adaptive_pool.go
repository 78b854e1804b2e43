package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Get after Stop.
var ErrPoolClosed = errors.New("adaptive_pool: pool stopped")

// Retirement thresholds for pooled resources.
const (
	retireErrScore = 3.0
	retireUseCount = 50
	retireAge      = 50 * time.Minute
)

// Handle wraps a pooled resource with health tracking metadata.
//
// Scoring: a success lowers the error score by 0.5 (min 0), a failure raises
// it by 1. A handle is retired when its score reaches 3, after 50 uses, or
// after 50 minutes, whichever comes first.
type Handle[T any] struct {
	ID    int64
	Value T

	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
}

func newHandle[T any](id int64, v T) *Handle[T] {
	return &Handle[T]{ID: id, Value: v, created: time.Now()}
}

// RecordSuccess decreases the error score (min 0).
func (h *Handle[T]) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *Handle[T]) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire reports whether the handle is worn out.
func (h *Handle[T]) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= retireErrScore ||
		h.useCount >= retireUseCount ||
		time.Since(h.created) >= retireAge
}

// AdaptivePoolConfig holds configuration for the adaptive pool.
type AdaptivePoolConfig struct {
	MinSize      int
	HardMax      int
	MemThreshold float64 // 0.0–1.0, heap in-use fraction that triggers shrinking
	ScaleStep    float64 // 0.0–1.0, fraction to grow/shrink per interval
	ScaleEvery   time.Duration
}

// Factory creates a new pooled resource.
type Factory[T any] func() (T, error)

// Destroyer releases a pooled resource.
type Destroyer[T any] func(T)

// AdaptivePool is a bounded checkout/checkin pool that retires unhealthy
// resources and scales between MinSize and HardMax based on utilisation and
// memory pressure.
type AdaptivePool[T any] struct {
	cfg       AdaptivePoolConfig
	factory   Factory[T]
	destroyer Destroyer[T]

	idle    chan *Handle[T]
	mu      sync.Mutex
	all     map[int64]*Handle[T]
	freed   chan struct{} // closed and replaced whenever a handle is destroyed
	nextID  atomic.Int64
	active  atomic.Int32
	stopped chan struct{}
	once    sync.Once
}

// NewAdaptivePool creates and starts an adaptive pool. Resources are created
// on demand; MinSize only bounds shrinking and retirement replacement.
func NewAdaptivePool[T any](cfg AdaptivePoolConfig, factory Factory[T], destroyer Destroyer[T]) *AdaptivePool[T] {
	if cfg.MinSize < 1 {
		cfg.MinSize = 1
	}
	if cfg.HardMax < cfg.MinSize {
		cfg.HardMax = cfg.MinSize
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}
	if cfg.ScaleEvery <= 0 {
		cfg.ScaleEvery = 10 * time.Second
	}

	ap := &AdaptivePool[T]{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		idle:      make(chan *Handle[T], cfg.HardMax),
		all:       make(map[int64]*Handle[T]),
		freed:     make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go ap.scalingLoop()
	return ap
}

// Get checks out a handle. It reuses an idle one, creates a new one while
// under HardMax, or blocks until a handle is returned, a slot frees up, or
// ctx is done.
func (ap *AdaptivePool[T]) Get(ctx context.Context) (*Handle[T], error) {
	for {
		select {
		case <-ap.stopped:
			return nil, ErrPoolClosed
		default:
		}

		select {
		case h := <-ap.idle:
			ap.active.Add(1)
			return h, nil
		default:
		}

		ap.mu.Lock()
		if len(ap.all) < ap.cfg.HardMax {
			h, err := ap.createHandleLocked()
			ap.mu.Unlock()
			if err != nil {
				return nil, err
			}
			ap.active.Add(1)
			return h, nil
		}
		freed := ap.freed
		ap.mu.Unlock()

		select {
		case h := <-ap.idle:
			ap.active.Add(1)
			return h, nil
		case <-freed:
			// A retired or discarded handle left room for a new one.
		case <-ap.stopped:
			return nil, ErrPoolClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a handle to the pool. Worn-out handles are destroyed instead.
func (ap *AdaptivePool[T]) Put(h *Handle[T], success bool) {
	ap.active.Add(-1)

	if success {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}

	select {
	case <-ap.stopped:
		ap.destroyHandle(h)
		return
	default:
	}

	if h.ShouldRetire() {
		slog.Debug("adaptive_pool: retiring handle", "id", h.ID)
		ap.destroyHandle(h)
		return
	}

	select {
	case ap.idle <- h:
	default:
		ap.destroyHandle(h)
	}
}

// Discard destroys a checked-out handle without returning it, e.g. after the
// resource it wraps has crashed.
func (ap *AdaptivePool[T]) Discard(h *Handle[T]) {
	ap.active.Add(-1)
	ap.destroyHandle(h)
}

// Size returns the total number of live handles.
func (ap *AdaptivePool[T]) Size() int {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return len(ap.all)
}

// ActiveCount returns the number of currently checked-out handles.
func (ap *AdaptivePool[T]) ActiveCount() int {
	return int(ap.active.Load())
}

// HardMax returns the configured maximum size.
func (ap *AdaptivePool[T]) HardMax() int {
	return ap.cfg.HardMax
}

// Stop shuts down the scaling goroutine and destroys all idle handles.
// Checked-out handles are destroyed when they are returned.
func (ap *AdaptivePool[T]) Stop() {
	ap.once.Do(func() {
		close(ap.stopped)
		for {
			select {
			case h := <-ap.idle:
				ap.destroyHandle(h)
			default:
				return
			}
		}
	})
}

// createHandleLocked creates a new handle. Caller must hold ap.mu.
func (ap *AdaptivePool[T]) createHandleLocked() (*Handle[T], error) {
	v, err := ap.factory()
	if err != nil {
		return nil, err
	}
	h := newHandle(ap.nextID.Add(1), v)
	ap.all[h.ID] = h
	return h, nil
}

func (ap *AdaptivePool[T]) destroyHandle(h *Handle[T]) {
	ap.mu.Lock()
	_, tracked := ap.all[h.ID]
	if tracked {
		delete(ap.all, h.ID)
		close(ap.freed)
		ap.freed = make(chan struct{})
	}
	ap.mu.Unlock()
	if tracked {
		ap.destroyer(h.Value)
	}
}

// scalingLoop periodically samples memory and adjusts pool size.
func (ap *AdaptivePool[T]) scalingLoop() {
	ticker := time.NewTicker(ap.cfg.ScaleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ap.stopped:
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			var pressure float64
			if m.HeapSys > 0 {
				pressure = float64(m.HeapInuse) / float64(m.HeapSys)
			}
			ap.scale(pressure)
		}
	}
}

// scale shrinks idle handles under memory pressure and pre-warms handles
// when more than 80% of the pool is checked out.
func (ap *AdaptivePool[T]) scale(memPressure float64) {
	ap.mu.Lock()
	totalSize := len(ap.all)
	ap.mu.Unlock()

	active := int(ap.active.Load())
	var activeRate float64
	if totalSize > 0 {
		activeRate = float64(active) / float64(totalSize)
	}

	step := int(math.Ceil(float64(totalSize) * ap.cfg.ScaleStep))
	if step < 1 {
		step = 1
	}

	switch {
	case memPressure > ap.cfg.MemThreshold:
		for i := 0; i < step; i++ {
			if ap.Size() <= ap.cfg.MinSize {
				return
			}
			select {
			case h := <-ap.idle:
				slog.Debug("adaptive_pool: shrinking", "id", h.ID)
				ap.destroyHandle(h)
			default:
				return
			}
		}
	case activeRate > 0.8:
		for i := 0; i < step; i++ {
			ap.mu.Lock()
			if len(ap.all) >= ap.cfg.HardMax {
				ap.mu.Unlock()
				return
			}
			h, err := ap.createHandleLocked()
			ap.mu.Unlock()
			if err != nil {
				slog.Warn("adaptive_pool: failed to grow", "error", err)
				return
			}
			select {
			case ap.idle <- h:
			default:
				ap.destroyHandle(h)
				return
			}
		}
	}
}
