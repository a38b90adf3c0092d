package tracking

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSessions writes sessions directly so timestamps are controlled.
func seedSessions(t *testing.T, db *sql.DB, now time.Time) {
	t.Helper()

	sessions := []struct {
		id      string
		file    string
		started time.Time
		events  []Event
	}{
		{"s1", "tone.wav", now.Add(-10 * 24 * time.Hour), []Event{
			{Kind: EventOpen},
			{Kind: EventPlay},
			{Kind: EventFinished, Seconds: 10, Underruns: 2},
		}},
		{"s2", "tone.wav", now.Add(-2 * time.Hour), []Event{
			{Kind: EventOpen},
			{Kind: EventPlay},
			{Kind: EventSeek, Seconds: 3},
			{Kind: EventPause, Seconds: 4},
			{Kind: EventResume, Seconds: 4},
			{Kind: EventMarker, Seconds: 5},
		}},
		{"s3", "speech.mp3", now.Add(-time.Hour), []Event{
			{Kind: EventOpen},
			{Kind: EventPlay, Underruns: 1},
		}},
	}

	for _, s := range sessions {
		_, err := db.Exec(`INSERT INTO sessions (id, started_at, file_name, format, channels, sample_rate, seconds, backend)
			VALUES (?, ?, ?, 'WAV', 2, 44100, 10, 'null')`, s.id, s.started.Unix(), s.file)
		require.NoError(t, err)
		for _, e := range s.events {
			_, err := db.Exec(`INSERT INTO transport_events (timestamp, session_id, kind, seconds, underruns)
				VALUES (?, ?, ?, ?, ?)`, s.started.Unix(), s.id, string(e.Kind), e.Seconds, e.Underruns)
			require.NoError(t, err)
		}
	}
}

func TestGetSessions(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	seedSessions(t, db, now)

	sessions, err := GetSessions(db, QueryFilter{Now: now})
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, []string{"s3", "s2", "s1"}, []string{sessions[0].SessionID, sessions[1].SessionID, sessions[2].SessionID})

	s2 := sessions[1]
	assert.Equal(t, "tone.wav", s2.FileName)
	assert.Equal(t, 2, s2.Plays, "play and resume")
	assert.Equal(t, 1, s2.Pauses)
	assert.Equal(t, 1, s2.Seeks)
	assert.Equal(t, 1, s2.Markers)
	assert.Equal(t, 5.0, s2.FurthestAt)

	s1 := sessions[2]
	assert.Equal(t, 1, s1.Finished)
	assert.Equal(t, int64(2), s1.Underruns)
}

func TestGetSessionsFilters(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	seedSessions(t, db, now)

	tests := []struct {
		name   string
		filter QueryFilter
		want   []string
	}{
		{"last day", QueryFilter{Days: 1, Now: now}, []string{"s3", "s2"}},
		{"file", QueryFilter{FileName: "tone.wav", Now: now}, []string{"s2", "s1"}},
		{"kind", QueryFilter{Kind: EventFinished, Now: now}, []string{"s1"}},
		{"session", QueryFilter{SessionID: "s3", Now: now}, []string{"s3"}},
		{"limit", QueryFilter{Limit: 1, Now: now}, []string{"s3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := GetSessions(db, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, s := range sessions {
				ids = append(ids, s.SessionID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestGetUsageSummary(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	seedSessions(t, db, now)

	summary, err := GetUsageSummary(db, QueryFilter{Now: now})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalSessions)
	assert.Equal(t, 2, summary.UniqueFiles)
	assert.Equal(t, 11, summary.TotalEvents)
	assert.Equal(t, int64(3), summary.TotalUnderruns)
	assert.Equal(t, 3, summary.KindDistribution["open"])
	assert.Equal(t, 3, summary.KindDistribution["play"])

	summary, err = GetUsageSummary(db, QueryFilter{Days: 1, Now: now})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalSessions)
	assert.Equal(t, int64(1), summary.TotalUnderruns)
}

func TestGetFileUsage(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	seedSessions(t, db, now)

	files, err := GetFileUsage(db, QueryFilter{Now: now})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "tone.wav", files[0].FileName)
	assert.Equal(t, 2, files[0].Sessions)
	assert.Equal(t, 2, files[0].Plays)
	assert.Equal(t, 1, files[0].Finished)
	assert.Equal(t, now.Add(-2*time.Hour).Unix(), files[0].LastOpened)
}

func TestAnalyzerNilDatabase(t *testing.T) {
	_, err := GetSessions(nil, QueryFilter{})
	assert.Error(t, err)
	_, err = GetUsageSummary(nil, QueryFilter{})
	assert.Error(t, err)
	_, err = GetFileUsage(nil, QueryFilter{})
	assert.Error(t, err)
}

func TestGetSessionsEmpty(t *testing.T) {
	db := setupTestDB(t)
	sessions, err := GetSessions(db, QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)

	summary, err := GetUsageSummary(db, QueryFilter{})
	require.NoError(t, err)
	assert.Zero(t, summary.TotalSessions)
	assert.Zero(t, summary.TotalUnderruns)
}
