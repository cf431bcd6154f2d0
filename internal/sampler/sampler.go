// Package sampler provides a weighted, decaying key sampler that converts
// bursts of interest signals into a rate-limited stream of fire events.
//
// Every Record call adds one unit of weight to a key. On each tick the sampler
// draws one key with probability proportional to its weight, removes it, and
// hands it to the fire function. The single tick interval is the global rate
// ceiling no matter how many keys compete.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrCallTimeout is the well-known failure a fire function returns when its
// downstream call ran out of time. The sampler treats it as "no turn happened".
var ErrCallTimeout = errors.New("call timeout")

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("sampler already running")

// FireFunc is invoked with the key chosen by a tick and the weight it had
// accumulated when it was drawn.
type FireFunc[K comparable] func(ctx context.Context, key K, weight int) error

// Config holds sampler settings.
type Config struct {
	// Interval is the wait between ticks.
	Interval time.Duration
	// DecayChancePerMinute is the probability, per minute of ticking, that the
	// least-weighted key is evicted. It is rescaled to a per-tick chance.
	DecayChancePerMinute float64
	// Seed seeds the random source. Zero means time-seeded.
	Seed int64
}

// Entry is one key and its accumulated weight.
type Entry[K comparable] struct {
	Key    K
	Weight int
}

type entry struct {
	count int
	seq   uint64
}

// Sampler is a goroutine-safe weighted key sampler.
type Sampler[K comparable] struct {
	cfg  Config
	fire FireFunc[K]

	mu     sync.Mutex
	counts map[K]*entry
	seq    uint64
	rng    *rand.Rand

	runMu         sync.Mutex
	running       bool
	stop          chan struct{}
	stopRequested bool
}

// New creates a Sampler. Interval defaults to one second when unset.
func New[K comparable](cfg Config, fire FireFunc[K]) *Sampler[K] {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.DecayChancePerMinute < 0 {
		cfg.DecayChancePerMinute = 0
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler[K]{
		cfg:    cfg,
		fire:   fire,
		counts: make(map[K]*entry),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Interval returns the configured tick interval.
func (s *Sampler[K]) Interval() time.Duration {
	return s.cfg.Interval
}

// DecayChancePerTick rescales the per-minute decay chance to one tick:
//
//	perTick = DecayChancePerMinute / (60s / Interval)
//
// It assumes ticks are evenly spaced.
func (s *Sampler[K]) DecayChancePerTick() float64 {
	ticksPerMinute := float64(time.Minute) / float64(s.cfg.Interval)
	return s.cfg.DecayChancePerMinute / ticksPerMinute
}

// Record adds one unit of weight to key, creating it if absent.
func (s *Sampler[K]) Record(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.counts[key]; ok {
		e.count++
		return
	}
	s.seq++
	s.counts[key] = &entry{count: 1, seq: s.seq}
}

// Clear removes key's weight. It is a no-op when key is absent.
func (s *Sampler[K]) Clear(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
}

// ClearWhere removes every key for which match returns true and reports how
// many were removed.
func (s *Sampler[K]) ClearWhere(match func(K) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.counts {
		if match(k) {
			delete(s.counts, k)
			removed++
		}
	}
	return removed
}

// ClearAll empties the sampler.
func (s *Sampler[K]) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.counts)
}

// Weight returns key's accumulated weight, or zero when absent.
func (s *Sampler[K]) Weight(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.counts[key]; ok {
		return e.count
	}
	return 0
}

// Len returns the number of keys with pending weight.
func (s *Sampler[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}

// Snapshot returns a copy of the pending entries in insertion order.
func (s *Sampler[K]) Snapshot() []Entry[K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ordered()
}

// String renders pending weights one per line.
func (s *Sampler[K]) String() string {
	var b strings.Builder
	for i, e := range s.Snapshot() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%v: %d", e.Key, e.Weight)
	}
	return b.String()
}

// Run starts the tick loop. It blocks until Stop is called or ctx is
// cancelled, and always finishes the in-flight tick first. A fire error other
// than ErrCallTimeout ends the loop and is returned.
func (s *Sampler[K]) Run(ctx context.Context) error {
	stop, err := s.begin()
	if err != nil {
		return err
	}
	defer s.end()

	slog.Info("Sampler started", "interval", s.cfg.Interval, "decay_per_minute", s.cfg.DecayChancePerMinute)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sampler stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-stop:
			slog.Info("Sampler stopped")
			return nil
		case <-ticker.C:
			// select picks at random when a stop and a tick are both ready.
			if stopPending(ctx, stop) {
				continue
			}
			if err := s.tick(ctx); err != nil {
				return fmt.Errorf("sampler tick: %w", err)
			}
		}
	}
}

func stopPending(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Stop signals the loop to exit after its current tick. It is idempotent. A
// Stop issued while no loop is running makes the next Run return at once.
func (s *Sampler[K]) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopRequested {
		return
	}
	s.stopRequested = true
	if s.stop != nil {
		close(s.stop)
	}
}

func (s *Sampler[K]) begin() (<-chan struct{}, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil, ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	if s.stopRequested {
		close(s.stop)
	}
	return s.stop, nil
}

func (s *Sampler[K]) end() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.running = false
	s.stop = nil
	s.stopRequested = false
}

// Running reports whether the tick loop is active.
func (s *Sampler[K]) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// tick runs one decay step and one sampling step. The chosen key is removed
// before fire is called, and fire runs without the lock held.
func (s *Sampler[K]) tick(ctx context.Context) error {
	key, weight, ok := s.choose()
	if !ok {
		return nil
	}

	slog.Debug("Sampler fired", "key", key, "weight", weight)
	err := s.fire(ctx, key, weight)
	if errors.Is(err, ErrCallTimeout) {
		slog.Warn("Sampler fire timed out, skipping turn", "key", key)
		return nil
	}
	return err
}

func (s *Sampler[K]) choose() (K, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero K
	s.checkInvariants()

	if s.shouldDecay() {
		if k, ok := s.leastWeighted(); ok {
			slog.Debug("Sampler decayed key", "key", k, "weight", s.counts[k].count)
			delete(s.counts, k)
		}
	}

	if len(s.counts) == 0 {
		return zero, 0, false
	}

	entries := s.ordered()
	total := 0
	for _, e := range entries {
		total += e.Weight
	}
	r := s.rng.Intn(total)
	for _, e := range entries {
		if r < e.Weight {
			delete(s.counts, e.Key)
			return e.Key, e.Weight, true
		}
		r -= e.Weight
	}
	panic("sampler: weighted draw fell off the end")
}

func (s *Sampler[K]) shouldDecay() bool {
	p := s.DecayChancePerTick()
	if p <= 0 {
		return false
	}
	return s.rng.Float64() < p
}

// leastWeighted returns the key with the smallest count. Ties go to the
// earliest-inserted key.
func (s *Sampler[K]) leastWeighted() (K, bool) {
	var (
		best  K
		bestE *entry
	)
	for k, e := range s.counts {
		if bestE == nil || e.count < bestE.count || (e.count == bestE.count && e.seq < bestE.seq) {
			best, bestE = k, e
		}
	}
	return best, bestE != nil
}

// ordered returns entries sorted by insertion. Callers hold mu.
func (s *Sampler[K]) ordered() []Entry[K] {
	keys := make([]K, 0, len(s.counts))
	for k := range s.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return s.counts[keys[i]].seq < s.counts[keys[j]].seq })
	out := make([]Entry[K], len(keys))
	for i, k := range keys {
		out[i] = Entry[K]{Key: k, Weight: s.counts[k].count}
	}
	return out
}

// checkInvariants panics when a present key carries a non-positive count.
// Callers hold mu.
func (s *Sampler[K]) checkInvariants() {
	for k, e := range s.counts {
		if e == nil || e.count < 1 {
			panic(fmt.Sprintf("sampler: key %v present with invalid count", k))
		}
	}
}
