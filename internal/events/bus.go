// Package events implements the per-job event stream: an ordered bounded
// buffer with replay, live fan-out to subscribers, and heartbeats on idle
// streams.
package events

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aura-studio/aura/internal/models"
)

const (
	// DefaultBufferSize bounds the per-job replay buffer.
	DefaultBufferSize = 1024
	// DefaultSubscriberBacklog is the pending-event bound after which a slow
	// subscriber is dropped.
	DefaultSubscriberBacklog = 64
	// DefaultHeartbeatInterval is the idle period before a heartbeat event.
	DefaultHeartbeatInterval = 10 * time.Second
)

// Options tune the bus.
type Options struct {
	BufferSize        int
	SubscriberBacklog int
	HeartbeatInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.SubscriberBacklog <= 0 {
		o.SubscriberBacklog = DefaultSubscriberBacklog
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return o
}

// Subscriber receives one job's event stream. Events is closed when the
// stream ends (terminal event delivered, job stream closed, or the
// subscriber fell too far behind).
type Subscriber struct {
	ID     string
	JobID  string
	Events chan models.JobEvent

	cancel func()
}

// Close detaches the subscriber.
func (s *Subscriber) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

type stream struct {
	mu       sync.Mutex
	jobID    string
	buffer   []models.JobEvent
	capacity int
	evicted  bool
	lastID   models.EventID
	counter  uint64
	lastMs   int64
	terminal bool
	subs     map[string]*subscriber
}

type subscriber struct {
	pub     *Subscriber
	dropped bool
}

// Bus is the event broker. One stream per job.
type Bus struct {
	opts   Options
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	streams map[string]*stream
	seq     uint64

	heartbeatStop chan struct{}
	heartbeatOnce sync.Once
}

// NewBus creates a bus with the given options.
func NewBus(opts Options, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		opts:          opts.withDefaults(),
		logger:        logger,
		clock:         time.Now,
		streams:       make(map[string]*stream),
		heartbeatStop: make(chan struct{}),
	}
}

// Start launches the heartbeat loop. Safe to call once.
func (b *Bus) Start() {
	go b.heartbeatLoop()
}

// Stop halts the heartbeat loop and closes all subscribers.
func (b *Bus) Stop() {
	b.heartbeatOnce.Do(func() { close(b.heartbeatStop) })

	b.mu.Lock()
	streams := make([]*stream, 0, len(b.streams))
	for _, st := range b.streams {
		streams = append(streams, st)
	}
	b.streams = make(map[string]*stream)
	b.mu.Unlock()

	for _, st := range streams {
		st.mu.Lock()
		for id, sub := range st.subs {
			close(sub.pub.Events)
			delete(st.subs, id)
		}
		st.mu.Unlock()
	}
}

func (b *Bus) heartbeatLoop() {
	ticker := time.NewTicker(b.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.heartbeatStop:
			return
		case <-ticker.C:
			b.emitHeartbeats()
		}
	}
}

// emitHeartbeats sends a heartbeat on every stream that has been silent for
// a full interval. Heartbeats are live-only; they are never buffered for
// replay.
func (b *Bus) emitHeartbeats() {
	now := b.clock()
	cutoff := now.Add(-b.opts.HeartbeatInterval).UnixMilli()

	b.mu.RLock()
	streams := make([]*stream, 0, len(b.streams))
	for _, st := range b.streams {
		streams = append(streams, st)
	}
	b.mu.RUnlock()

	for _, st := range streams {
		st.mu.Lock()
		if st.terminal || st.lastID.UnixMs > cutoff || len(st.subs) == 0 {
			st.mu.Unlock()
			continue
		}
		hb := models.JobEvent{
			Kind:      models.EventHeartbeat,
			JobID:     st.jobID,
			Timestamp: now.UTC(),
		}
		hb.ID = st.nextIDLocked(now)
		hb.EventID = hb.ID.String()
		b.deliverLocked(st, hb)
		st.mu.Unlock()
	}
}

func (b *Bus) getOrCreateStream(jobID string) *stream {
	b.mu.RLock()
	st, ok := b.streams[jobID]
	b.mu.RUnlock()
	if ok {
		return st
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.streams[jobID]; ok {
		return st
	}
	st = &stream{
		jobID:    jobID,
		capacity: b.opts.BufferSize,
		subs:     make(map[string]*subscriber),
	}
	b.streams[jobID] = st
	return st
}

// nextIDLocked allocates the next strictly increasing event ID. Must be
// called with the stream lock held.
func (st *stream) nextIDLocked(now time.Time) models.EventID {
	ms := now.UnixMilli()
	if ms < st.lastMs {
		ms = st.lastMs
	}
	if ms == st.lastMs {
		st.counter++
	} else {
		st.lastMs = ms
		st.counter = 0
	}
	id := models.EventID{UnixMs: ms, Counter: st.counter}
	st.lastID = id
	return id
}

// Publish appends an event to the job's stream and fans it out. The bus
// assigns the event ID and timestamp.
func (b *Bus) Publish(jobID string, event models.JobEvent) models.JobEvent {
	st := b.getOrCreateStream(jobID)
	now := b.clock()

	st.mu.Lock()
	defer st.mu.Unlock()

	event.JobID = jobID
	event.ID = st.nextIDLocked(now)
	event.EventID = event.ID.String()
	if event.Timestamp.IsZero() {
		event.Timestamp = now.UTC()
	}

	st.buffer = append(st.buffer, event)
	if len(st.buffer) > st.capacity {
		overflow := len(st.buffer) - st.capacity
		st.buffer = st.buffer[overflow:]
		st.evicted = true
	}
	if event.Kind.IsTerminal() {
		st.terminal = true
	}

	b.deliverLocked(st, event)

	if st.terminal {
		for id, sub := range st.subs {
			close(sub.pub.Events)
			delete(st.subs, id)
		}
	}
	return event
}

// deliverLocked fans an event out to subscribers, dropping any whose
// backlog is full. Must be called with the stream lock held.
func (b *Bus) deliverLocked(st *stream, event models.JobEvent) {
	for id, sub := range st.subs {
		select {
		case sub.pub.Events <- event:
		default:
			b.logger.Warn("subscriber backlog full, dropping subscriber",
				slog.String("job_id", st.jobID),
				slog.String("subscriber_id", id),
			)
			close(sub.pub.Events)
			delete(st.subs, id)
		}
	}
}

// Subscribe attaches to a job's stream. If lastEventID is non-zero and
// still buffered, all newer events are replayed before live delivery; if it
// was evicted, a resync warning is emitted first and delivery starts from
// the current tail. Subscribing to a terminal job without a cursor delivers
// only the terminal event, then the stream closes.
func (b *Bus) Subscribe(ctx context.Context, jobID string, lastEventID models.EventID) *Subscriber {
	st := b.getOrCreateStream(jobID)

	b.mu.Lock()
	b.seq++
	subID := "sub-" + strconv.FormatUint(b.seq, 10)
	b.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Replay happens into the backlog before the subscriber is registered
	// for live events, so ordering is preserved.
	var replay []models.JobEvent
	switch {
	case !lastEventID.IsZero():
		if st.evictedBeforeLocked(lastEventID) {
			replay = append(replay, models.JobEvent{
				Kind:      models.EventWarning,
				JobID:     jobID,
				Message:   "resync: requested event id evicted from buffer, resuming from tail",
				Timestamp: b.clock().UTC(),
			})
		} else {
			for _, ev := range st.buffer {
				if ev.ID.After(lastEventID) {
					replay = append(replay, ev)
				}
			}
		}
	case st.terminal:
		// A finished job without a resume cursor yields its terminal event
		// only.
		if n := len(st.buffer); n > 0 {
			replay = append(replay, st.buffer[n-1])
		}
	default:
		replay = append(replay, st.buffer...)
	}

	// The channel must hold the entire replay: a resume must never lose
	// events to its own backlog bound.
	backlog := b.opts.SubscriberBacklog
	if len(replay) > backlog {
		backlog = len(replay)
	}
	pub := &Subscriber{
		ID:     subID,
		JobID:  jobID,
		Events: make(chan models.JobEvent, backlog),
	}
	for _, ev := range replay {
		pub.Events <- ev
	}

	if st.terminal {
		close(pub.Events)
		return pub
	}

	sub := &subscriber{pub: pub}
	st.subs[subID] = sub
	pub.cancel = func() { b.unsubscribe(st, subID) }

	if ctx != nil {
		go func() {
			<-ctx.Done()
			pub.Close()
		}()
	}
	return pub
}

// evictedBeforeLocked reports whether lastEventID predates the buffered
// window.
func (st *stream) evictedBeforeLocked(lastEventID models.EventID) bool {
	if !st.evicted || len(st.buffer) == 0 {
		return false
	}
	oldest := st.buffer[0].ID
	return oldest.After(lastEventID) && oldest != lastEventID
}

func (b *Bus) unsubscribe(st *stream, subID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sub, ok := st.subs[subID]; ok {
		close(sub.pub.Events)
		delete(st.subs, subID)
	}
}

// DropStream removes a job's stream entirely, closing subscribers. Used by
// maintenance once a job record has been pruned.
func (b *Bus) DropStream(jobID string) {
	b.mu.Lock()
	st, ok := b.streams[jobID]
	delete(b.streams, jobID)
	b.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for id, sub := range st.subs {
		close(sub.pub.Events)
		delete(st.subs, id)
	}
}

// LastEventID returns the most recent event ID on a job's stream.
func (b *Bus) LastEventID(jobID string) (models.EventID, bool) {
	b.mu.RLock()
	st, ok := b.streams[jobID]
	b.mu.RUnlock()
	if !ok {
		return models.EventID{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.lastID.IsZero() {
		return models.EventID{}, false
	}
	return st.lastID, true
}
