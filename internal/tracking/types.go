package tracking

import (
	"fmt"
	"time"
)

// EventKind names a transport event.
type EventKind string

const (
	EventOpen     EventKind = "open"
	EventPlay     EventKind = "play"
	EventPause    EventKind = "pause"
	EventResume   EventKind = "resume"
	EventStop     EventKind = "stop"
	EventSeek     EventKind = "seek"
	EventFinished EventKind = "finished"
	EventMarker   EventKind = "marker"
	EventClose    EventKind = "close"
)

var validKinds = map[EventKind]bool{
	EventOpen:     true,
	EventPlay:     true,
	EventPause:    true,
	EventResume:   true,
	EventStop:     true,
	EventSeek:     true,
	EventFinished: true,
	EventMarker:   true,
	EventClose:    true,
}

// ParseEventKind validates a kind given on the command line.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !validKinds[k] {
		return "", fmt.Errorf("unknown event kind: %s", s)
	}
	return k, nil
}

// Event is one transport action. Seconds is the playback position at the
// time of the action; Underruns is the engine's running count.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Seconds   float64
	Underruns uint64
	Detail    map[string]any
}

// FileInfo describes the file a session plays.
type FileInfo struct {
	Name       string  `json:"name"`
	Format     string  `json:"format"`
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sample_rate"`
	Seconds    float64 `json:"seconds"`
	Backend    string  `json:"backend"`
}

// Hook receives every event sent to a Recorder, on the recording goroutine.
type Hook func(sessionID string, event Event)
