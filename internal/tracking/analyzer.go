package tracking

import (
	"database/sql"
	"errors"
	"fmt"
)

var errNilDB = errors.New("database connection is nil")

// SessionSummary aggregates the events of one session.
type SessionSummary struct {
	SessionID  string  `json:"session_id"`
	FileName   string  `json:"file_name"`
	Format     string  `json:"format,omitempty"`
	Seconds    float64 `json:"seconds"`
	Backend    string  `json:"backend,omitempty"`
	StartedAt  int64   `json:"started_at"` // Unix timestamp
	Plays      int     `json:"plays"`
	Pauses     int     `json:"pauses"`
	Seeks      int     `json:"seeks"`
	Finished   int     `json:"finished"`
	Markers    int     `json:"markers"`
	Underruns  int64   `json:"underruns"`   // highest count reported in the session
	FurthestAt float64 `json:"furthest_at"` // furthest position reached, seconds
}

// UsageSummary provides overall statistics
type UsageSummary struct {
	TotalSessions    int            `json:"total_sessions"`
	UniqueFiles      int            `json:"unique_files"`
	TotalEvents      int            `json:"total_events"`
	TotalUnderruns   int64          `json:"total_underruns"`
	KindDistribution map[string]int `json:"kind_distribution"` // kind -> count
}

// FileUsage reports how often a file was opened and played to the end.
type FileUsage struct {
	FileName   string `json:"file_name"`
	Sessions   int    `json:"sessions"`
	Plays      int    `json:"plays"`
	Finished   int    `json:"finished"`
	LastOpened int64  `json:"last_opened"`
}

func where(filter QueryFilter) (string, []any) {
	clause, args := filter.BuildWhereClause()
	if clause == "" {
		return "", args
	}
	return " WHERE " + clause, args
}

func limit(filter QueryFilter) string {
	if filter.Limit > 0 {
		return fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return ""
}

// GetSessions returns one summary per session, newest first.
func GetSessions(db *sql.DB, filter QueryFilter) ([]SessionSummary, error) {
	if db == nil {
		return nil, errNilDB
	}

	whereClause, args := where(filter)
	query := `
		SELECT
			s.id, s.file_name, COALESCE(s.format, ''), s.seconds, COALESCE(s.backend, ''), s.started_at,
			COALESCE(SUM(e.kind IN ('play', 'resume')), 0),
			COALESCE(SUM(e.kind = 'pause'), 0),
			COALESCE(SUM(e.kind = 'seek'), 0),
			COALESCE(SUM(e.kind = 'finished'), 0),
			COALESCE(SUM(e.kind = 'marker'), 0),
			COALESCE(MAX(e.underruns), 0),
			COALESCE(MAX(e.seconds), 0)
		FROM sessions s
		LEFT JOIN transport_events e ON e.session_id = s.id` + whereClause + `
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.rowid DESC` + limit(filter)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var s SessionSummary
		err := rows.Scan(&s.SessionID, &s.FileName, &s.Format, &s.Seconds, &s.Backend, &s.StartedAt,
			&s.Plays, &s.Pauses, &s.Seeks, &s.Finished, &s.Markers, &s.Underruns, &s.FurthestAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		results = append(results, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return results, nil
}

// GetUsageSummary returns totals across the matching sessions.
func GetUsageSummary(db *sql.DB, filter QueryFilter) (*UsageSummary, error) {
	if db == nil {
		return nil, errNilDB
	}

	whereClause, args := where(filter)

	var summary UsageSummary
	err := db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT s.file_name)
		FROM sessions s`+whereClause, args...).Scan(&summary.TotalSessions, &summary.UniqueFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to query session totals: %w", err)
	}

	err = db.QueryRow(`
		SELECT COALESCE(SUM(u), 0) FROM (
			SELECT MAX(e.underruns) AS u
			FROM sessions s
			JOIN transport_events e ON e.session_id = s.id`+whereClause+`
			GROUP BY s.id
		)`, args...).Scan(&summary.TotalUnderruns)
	if err != nil {
		return nil, fmt.Errorf("failed to query underrun totals: %w", err)
	}

	rows, err := db.Query(`
		SELECT e.kind, COUNT(*)
		FROM sessions s
		JOIN transport_events e ON e.session_id = s.id`+whereClause+`
		GROUP BY e.kind
		ORDER BY e.kind`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query kind distribution: %w", err)
	}
	defer rows.Close()

	summary.KindDistribution = make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kind distribution: %w", err)
		}
		summary.KindDistribution[kind] = count
		summary.TotalEvents += count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kind distribution rows: %w", err)
	}

	return &summary, nil
}

// GetFileUsage groups sessions by file name, most opened first.
func GetFileUsage(db *sql.DB, filter QueryFilter) ([]FileUsage, error) {
	if db == nil {
		return nil, errNilDB
	}

	whereClause, args := where(filter)
	query := `
		SELECT
			s.file_name,
			COUNT(DISTINCT s.id),
			COALESCE(SUM(e.kind = 'play'), 0),
			COALESCE(SUM(e.kind = 'finished'), 0),
			MAX(s.started_at)
		FROM sessions s
		LEFT JOIN transport_events e ON e.session_id = s.id` + whereClause + `
		GROUP BY s.file_name
		ORDER BY COUNT(DISTINCT s.id) DESC, s.file_name` + limit(filter)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query file usage: %w", err)
	}
	defer rows.Close()

	var results []FileUsage
	for rows.Next() {
		var f FileUsage
		if err := rows.Scan(&f.FileName, &f.Sessions, &f.Plays, &f.Finished, &f.LastOpened); err != nil {
			return nil, fmt.Errorf("failed to scan file usage row: %w", err)
		}
		results = append(results, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file usage rows: %w", err)
	}

	return results, nil
}
