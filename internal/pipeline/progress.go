package pipeline

import "time"

// EventType names a progress event
type EventType string

const (
	EventParseStarted EventType = "parse_started"
	EventFileStarted  EventType = "file_started"
	EventFileDone     EventType = "file_done"
	EventParseDone    EventType = "parse_done"
	EventCacheHit     EventType = "cache_hit"
)

// Event reports pipeline progress
type Event struct {
	Type      EventType `json:"type"`
	Folder    string    `json:"folder"`
	Path      string    `json:"path,omitempty"`
	Files     int       `json:"files,omitempty"`
	Trials    int       `json:"trials,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *optionsValues) emit(e Event) {
	if o.progress == nil {
		return
	}
	e.Timestamp = time.Now().UTC()
	o.progress(e)
}
