package tracking

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueSize bounds the number of events waiting to be written.
const DefaultQueueSize = 256

// Recorder writes sessions and transport events to the database on its own
// goroutine. Callers never wait on SQLite: when the queue is full the event
// is dropped and counted. A write error disables database logging for the
// rest of the process; hooks keep running.
type Recorder struct {
	db    *sql.DB
	hooks []Hook
	now   func() time.Time

	queue   chan entry
	done    chan struct{}
	closing sync.Once

	session  string
	disabled atomic.Bool
	dropped  atomic.Uint64
	written  atomic.Uint64
}

type entry struct {
	sessionID string
	info      *FileInfo
	event     Event
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithHook adds a hook called for every recorded event.
func WithHook(hook Hook) RecorderOption {
	return func(r *Recorder) {
		r.hooks = append(r.hooks, hook)
	}
}

// WithQueueSize changes the queue capacity.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan entry, n)
		}
	}
}

// WithRecorderClock replaces the clock used to stamp events without a time.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder starts a recorder. db may be nil, in which case only the hooks
// see events.
func NewRecorder(db *sql.DB, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		db:    db,
		now:   time.Now,
		queue: make(chan entry, DefaultQueueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if db == nil {
		r.disabled.Store(true)
	}

	go r.run()
	slog.Debug("session recorder started", "queue_size", cap(r.queue), "database", db != nil)
	return r
}

// Open starts a new session for info and returns its id. Later events
// belong to this session until the next Open.
func (r *Recorder) Open(info FileInfo) string {
	r.session = uuid.NewString()
	r.enqueue(entry{
		sessionID: r.session,
		info:      &info,
		event:     Event{Kind: EventOpen, Time: r.now()},
	})
	return r.session
}

// SessionID returns the current session id, or "" before the first Open.
func (r *Recorder) SessionID() string { return r.session }

// Record queues event for the current session. Events before the first Open
// are ignored.
func (r *Recorder) Record(event Event) {
	if r.session == "" {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.now()
	}
	r.enqueue(entry{sessionID: r.session, event: event})
}

func (r *Recorder) enqueue(e entry) {
	select {
	case r.queue <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("session recorder queue full, dropping events", "dropped", n)
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many events reached the database.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Close flushes queued events and stops the recorder. Record must not be
// called afterwards.
func (r *Recorder) Close() {
	r.closing.Do(func() {
		close(r.queue)
	})
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		for _, hook := range r.hooks {
			hook(e.sessionID, e.event)
		}
		if r.disabled.Load() {
			continue
		}
		if err := r.write(e); err != nil {
			slog.Warn("session tracking failed, disabling database logging",
				"error", err,
				"session_id", e.sessionID,
				"kind", e.event.Kind)
			r.disabled.Store(true)
			continue
		}
		r.written.Add(1)
	}
}

func (r *Recorder) write(e entry) error {
	if e.info != nil {
		if err := r.insertSession(e.sessionID, e.event.Time, e.info); err != nil {
			return err
		}
	}
	return r.insertEvent(e.sessionID, e.event)
}

func (r *Recorder) insertSession(id string, started time.Time, info *FileInfo) error {
	_, err := r.db.Exec(`
		INSERT INTO sessions (id, started_at, file_name, format, channels, sample_rate, seconds, backend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		started.Unix(),
		info.Name,
		info.Format,
		info.Channels,
		info.SampleRate,
		info.Seconds,
		info.Backend)
	return err
}

func (r *Recorder) insertEvent(sessionID string, event Event) error {
	var detail any
	if len(event.Detail) > 0 {
		data, err := json.Marshal(event.Detail)
		if err != nil {
			return err
		}
		detail = string(data)
	}

	_, err := r.db.Exec(`
		INSERT INTO transport_events (timestamp, session_id, kind, seconds, underruns, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.Time.Unix(),
		sessionID,
		string(event.Kind),
		event.Seconds,
		event.Underruns,
		detail)
	return err
}

// NewSlogHook returns a hook that logs every event at debug level. A nil
// logger means the default logger.
func NewSlogHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(sessionID string, event Event) {
		logger.Debug("transport event",
			"session_id", sessionID,
			"kind", string(event.Kind),
			"seconds", event.Seconds,
			"underruns", event.Underruns)
	}
}
