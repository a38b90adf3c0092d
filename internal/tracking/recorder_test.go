package tracking

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInfo = FileInfo{
	Name:       "tone.wav",
	Format:     "WAV",
	Channels:   2,
	SampleRate: 44100,
	Seconds:    10,
	Backend:    "null",
}

func TestRecorderWritesSessionAndEvents(t *testing.T) {
	db := setupTestDB(t)
	r := NewRecorder(db)

	id := r.Open(testInfo)
	require.NotEmpty(t, id)
	assert.Equal(t, id, r.SessionID())

	r.Record(Event{Kind: EventPlay})
	r.Record(Event{Kind: EventSeek, Seconds: 4.5, Detail: map[string]any{"from": 1.25}})
	r.Record(Event{Kind: EventFinished, Seconds: 10, Underruns: 3})
	r.Close()

	assert.Equal(t, uint64(4), r.Written())
	assert.Zero(t, r.Dropped())

	var name string
	var channels, rate int
	require.NoError(t, db.QueryRow("SELECT file_name, channels, sample_rate FROM sessions WHERE id = ?", id).
		Scan(&name, &channels, &rate))
	assert.Equal(t, "tone.wav", name)
	assert.Equal(t, 2, channels)
	assert.Equal(t, 44100, rate)

	rows, err := db.Query("SELECT kind FROM transport_events WHERE session_id = ? ORDER BY id", id)
	require.NoError(t, err)
	defer rows.Close()
	var kinds []string
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		kinds = append(kinds, k)
	}
	assert.Equal(t, []string{"open", "play", "seek", "finished"}, kinds)

	var detail string
	require.NoError(t, db.QueryRow("SELECT detail FROM transport_events WHERE kind = 'seek'").Scan(&detail))
	assert.JSONEq(t, `{"from":1.25}`, detail)
}

func TestRecorderIgnoresEventsBeforeOpen(t *testing.T) {
	db := setupTestDB(t)
	r := NewRecorder(db)
	r.Record(Event{Kind: EventPlay})
	r.Close()

	assert.Zero(t, r.Written())
	assert.Empty(t, r.SessionID())
}

func TestRecorderNewSessionPerOpen(t *testing.T) {
	db := setupTestDB(t)
	r := NewRecorder(db)
	first := r.Open(testInfo)
	second := r.Open(testInfo)
	r.Close()

	assert.NotEqual(t, first, second)
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRecorderHooksWithoutDatabase(t *testing.T) {
	var mu sync.Mutex
	var seen []EventKind
	r := NewRecorder(nil, WithHook(func(sessionID string, e Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Kind)
	}))

	r.Open(testInfo)
	r.Record(Event{Kind: EventPause})
	r.Close()

	assert.Equal(t, []EventKind{EventOpen, EventPause}, seen)
	assert.Zero(t, r.Written())
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	r := NewRecorder(nil, WithQueueSize(1), WithHook(func(string, Event) { <-release }))

	r.Open(testInfo)
	for i := 0; i < 50; i++ {
		r.Record(Event{Kind: EventSeek})
	}
	close(release)
	r.Close()

	// the hook may hold one event and the queue one more
	assert.GreaterOrEqual(t, r.Dropped(), uint64(48))
}

func TestRecorderDisablesAfterWriteError(t *testing.T) {
	db := setupTestDB(t)
	r := NewRecorder(db)
	require.NoError(t, db.Close())

	r.Open(testInfo)
	r.Record(Event{Kind: EventPlay})
	r.Close()

	assert.Zero(t, r.Written())
	assert.True(t, r.disabled.Load())
}

func TestRecorderClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db := setupTestDB(t)
	r := NewRecorder(db, WithRecorderClock(func() time.Time { return at }))
	id := r.Open(testInfo)
	r.Close()

	var started int64
	require.NoError(t, db.QueryRow("SELECT started_at FROM sessions WHERE id = ?", id).Scan(&started))
	assert.Equal(t, at.Unix(), started)
}
