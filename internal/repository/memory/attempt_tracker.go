package memory

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"contact-relay/internal/bucketing"
)

// DefaultDecay is how long an accepted attempt counts against its client.
const DefaultDecay = 10 * time.Minute

// AttemptTracker remembers how many accepted submissions each client has made
// recently. Every recorded attempt schedules its own decrement after the decay
// delay, so a count approximates the attempts made in the trailing window.
//
// Counts are process-local and are lost on restart. Entries are never evicted,
// so the key set grows with every distinct client seen.
type AttemptTracker struct {
	shards   []*attemptShard
	bucketer *bucketing.BucketingManager
	decay    time.Duration
	logger   *zap.Logger

	timerMu sync.Mutex
	timers  map[uint64]*time.Timer
	nextID  uint64
	closed  bool
}

type attemptShard struct {
	mu     sync.Mutex
	counts map[string]int
}

// Option configures an AttemptTracker.
type Option func(*AttemptTracker)

// WithDecay sets the delay after which a recorded attempt is forgotten.
func WithDecay(d time.Duration) Option {
	return func(t *AttemptTracker) {
		if d > 0 {
			t.decay = d
		}
	}
}

// WithBucketing sets the manager used to pick a shard for each client.
func WithBucketing(bm *bucketing.BucketingManager) Option {
	return func(t *AttemptTracker) {
		if bm != nil {
			t.bucketer = bm
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *AttemptTracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewAttemptTracker(opts ...Option) *AttemptTracker {
	t := &AttemptTracker{
		decay:  DefaultDecay,
		logger: zap.NewNop(),
		timers: make(map[uint64]*time.Timer),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.bucketer == nil {
		t.bucketer = bucketing.NewBucketingManager(bucketing.DefaultBuckets)
	}

	t.shards = make([]*attemptShard, t.bucketer.Buckets())
	for i := range t.shards {
		t.shards[i] = &attemptShard{counts: make(map[string]int)}
	}
	return t
}

// GetOrInit returns the remembered count for clientID, storing 0 if absent.
func (t *AttemptTracker) GetOrInit(clientID string) int {
	s := t.shard(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrInit(clientID)
}

// RecordAttempt increments the count for clientID, schedules the matching
// decrement and returns the new count.
func (t *AttemptTracker) RecordAttempt(clientID string) int {
	s := t.shard(clientID)
	s.mu.Lock()
	count := s.counts[clientID] + 1
	s.counts[clientID] = count
	s.mu.Unlock()

	t.scheduleDecay(clientID)
	return count
}

// Admit calls check with the current count for clientID while holding the
// client's lock. If check returns nil the attempt is recorded as by
// RecordAttempt; otherwise the count is left untouched and the error returned.
func (t *AttemptTracker) Admit(clientID string, check func(count int) error) (int, error) {
	s := t.shard(clientID)
	s.mu.Lock()
	count := s.getOrInit(clientID)
	if err := check(count); err != nil {
		s.mu.Unlock()
		return count, err
	}
	count++
	s.counts[clientID] = count
	s.mu.Unlock()

	t.scheduleDecay(clientID)
	return count, nil
}

// Count returns the stored count and whether clientID has an entry.
func (t *AttemptTracker) Count(clientID string) (int, bool) {
	s := t.shard(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counts[clientID]
	return count, ok
}

// Reset removes the entry for clientID. Pending decrements for it still fire
// and recreate the entry at zero.
func (t *AttemptTracker) Reset(clientID string) {
	s := t.shard(clientID)
	s.mu.Lock()
	delete(s.counts, clientID)
	s.mu.Unlock()
}

// Len returns the number of clients with an entry.
func (t *AttemptTracker) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.counts)
		s.mu.Unlock()
	}
	return n
}

// Pending returns the number of scheduled decrements that have not fired.
func (t *AttemptTracker) Pending() int {
	t.timerMu.Lock()
	defer t.timerMu.Unlock()
	return len(t.timers)
}

// Close stops all pending decrements. Attempts recorded afterwards are counted
// but never decay.
func (t *AttemptTracker) Close() {
	t.timerMu.Lock()
	defer t.timerMu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.logger.Debug("Attempt tracker closed")
}

func (t *AttemptTracker) shard(clientID string) *attemptShard {
	return t.shards[t.bucketer.GetBucket(clientID)]
}

func (t *AttemptTracker) scheduleDecay(clientID string) {
	t.timerMu.Lock()
	defer t.timerMu.Unlock()
	if t.closed {
		return
	}

	id := t.nextID
	t.nextID++
	// The callback takes timerMu, so it cannot run before the timer is stored.
	t.timers[id] = time.AfterFunc(t.decay, func() {
		t.timerMu.Lock()
		delete(t.timers, id)
		t.timerMu.Unlock()

		t.decrement(clientID)
	})
}

func (t *AttemptTracker) decrement(clientID string) {
	s := t.shard(clientID)
	s.mu.Lock()
	count, ok := s.counts[clientID]
	if !ok {
		count = 1
	}
	count--
	if count < 0 {
		count = 0
	}
	s.counts[clientID] = count
	s.mu.Unlock()

	t.logger.Debug("Attempt decayed",
		zap.String("client", clientID),
		zap.Int("count", count),
	)
}

func (s *attemptShard) getOrInit(clientID string) int {
	count, ok := s.counts[clientID]
	if !ok {
		s.counts[clientID] = 0
	}
	return count
}
