package ui

import (
	"encoding/json"
	"io"
	"sync"

	"igreels/pkg/harvest"
	"igreels/pkg/models"
)

// EventStream writes each progress event as one JSON line
type EventStream struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewEventStream creates a stream writing to w
func NewEventStream(w io.Writer) *EventStream {
	return &EventStream{enc: json.NewEncoder(w)}
}

// Report implements harvest.Reporter. The first write error stops the
// stream.
func (s *EventStream) Report(event models.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(event)
}

// Err returns the first write error
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Tee fans one event out to several reporters in order
type Tee []harvest.Reporter

// Report implements harvest.Reporter
func (t Tee) Report(event models.ProgressEvent) {
	for _, r := range t {
		if r != nil {
			r.Report(event)
		}
	}
}
