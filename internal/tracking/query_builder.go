package tracking

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// QueryFilter is the common filter of the analyze commands.
type QueryFilter struct {
	// Time filters, in priority order DatePreset > Start/End > Days
	StartTime  *time.Time // inclusive
	EndTime    *time.Time // exclusive
	Days       int
	DatePreset string // "today", "yesterday", "week", "last-week", "month", "last-month", "all"

	FileName  string
	Kind      EventKind
	SessionID string

	Limit int

	// Now is the reference time of relative filters; zero means time.Now().
	Now time.Time
}

func (q *QueryFilter) reference() time.Time {
	if q.Now.IsZero() {
		return time.Now()
	}
	return q.Now
}

// ApplyTimeFilter converts the time options to Unix timestamps. A zero start
// means no lower bound.
func (q *QueryFilter) ApplyTimeFilter(now time.Time) (startUnix, endUnix int64) {
	slog.Debug("applying time filter", "days", q.Days, "date_preset", q.DatePreset)

	endUnix = now.Unix()

	if q.DatePreset != "" {
		start, end, err := ParseDatePreset(q.DatePreset, now)
		if err != nil {
			slog.Warn("invalid date preset, using no time filter", "preset", q.DatePreset, "error", err)
			return 0, endUnix
		}
		if start.IsZero() {
			return 0, end.Unix()
		}
		return start.Unix(), end.Unix()
	}

	if q.StartTime != nil && q.EndTime != nil {
		return q.StartTime.Unix(), q.EndTime.Unix()
	}
	if q.StartTime != nil {
		return q.StartTime.Unix(), endUnix
	}
	if q.EndTime != nil {
		return 0, q.EndTime.Unix()
	}

	if q.Days > 0 {
		return now.AddDate(0, 0, -q.Days).Unix(), endUnix
	}

	return 0, endUnix
}

func (q *QueryFilter) hasTimeFilter() bool {
	return q.StartTime != nil || q.EndTime != nil || q.Days > 0 || q.DatePreset != ""
}

// BuildWhereClause constructs the session-level WHERE clause over the
// sessions table aliased as s.
func (q *QueryFilter) BuildWhereClause() (string, []any) {
	var clauses []string
	var args []any

	slog.Debug("building where clause", "file_name", q.FileName, "kind", q.Kind, "session_id", q.SessionID)

	if q.hasTimeFilter() {
		startUnix, endUnix := q.ApplyTimeFilter(q.reference())
		if startUnix > 0 {
			clauses = append(clauses, "s.started_at >= ?")
			args = append(args, startUnix)
		}
		clauses = append(clauses, "s.started_at <= ?")
		args = append(args, endUnix)
	}

	if q.FileName != "" {
		clauses = append(clauses, "s.file_name = ?")
		args = append(args, q.FileName)
	}

	if q.SessionID != "" {
		clauses = append(clauses, "s.id = ?")
		args = append(args, q.SessionID)
	}

	if q.Kind != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM transport_events k WHERE k.session_id = s.id AND k.kind = ?)")
		args = append(args, string(q.Kind))
	}

	whereClause := strings.Join(clauses, " AND ")
	slog.Debug("built where clause", "clause", whereClause, "arg_count", len(args))
	return whereClause, args
}

// ParseDatePreset converts date preset strings to time ranges
func ParseDatePreset(preset string, now time.Time) (start, end time.Time, err error) {
	slog.Debug("parsing date preset", "preset", preset)

	switch preset {
	case "today":
		start = beginningOfDay(now)
		end = now
	case "yesterday":
		yesterday := now.AddDate(0, 0, -1)
		start = beginningOfDay(yesterday)
		end = beginningOfDay(now)
	case "week", "this-week":
		start = beginningOfWeek(now)
		end = now
	case "last-week":
		start = beginningOfWeek(now).AddDate(0, 0, -7)
		end = beginningOfWeek(now)
	case "month", "this-month":
		start = beginningOfMonth(now)
		end = now
	case "last-month":
		start = beginningOfMonth(now).AddDate(0, -1, 0)
		end = beginningOfMonth(now)
	case "all", "all-time":
		start = time.Time{}
		end = now
	default:
		err = fmt.Errorf("unknown preset: %s", preset)
		slog.Error("invalid date preset", "preset", preset)
		return
	}

	slog.Debug("parsed date preset", "preset", preset, "start", start, "end", end)
	return
}

// ParseNaturalDate parses expressions like "yesterday" or "3 days ago"
// relative to now.
func ParseNaturalDate(naturalDate string, now time.Time) (time.Time, error) {
	slog.Debug("parsing natural language date", "input", naturalDate)

	result, err := naturaldate.Parse(naturalDate, now)
	if err != nil {
		slog.Warn("failed to parse natural language date", "input", naturalDate, "error", err)
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': %w", naturalDate, err)
	}

	slog.Debug("parsed natural language date", "input", naturalDate, "result", result)
	return result, nil
}

// beginningOfDay returns time at start of day (00:00:00)
func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// beginningOfWeek returns Monday 00:00:00 of t's week.
func beginningOfWeek(t time.Time) time.Time {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	monday := t.AddDate(0, 0, -int(weekday-1))
	return beginningOfDay(monday)
}

// beginningOfMonth returns time at start of month (1st day 00:00:00)
func beginningOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
