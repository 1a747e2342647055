package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var buffer = NewRingBuffer(256)

var eventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_events_total",
		Help: "Total number of events emitted since startup, by event name.",
	},
	[]string{"event"},
)

// Collector returns the event counter so an HTTP server with its own
// prometheus registry can expose it.
func Collector() prometheus.Collector {
	return eventsTotal
}

// Journal persists events outside the process. The Postgres client satisfies it.
type Journal interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

var (
	journal            Journal
	journalMu          sync.RWMutex
	journalErrorLogged bool
)

// SetJournal sets the journal used for event persistence. Pass nil to disable it.
func SetJournal(j Journal) {
	journalMu.Lock()
	journal = j
	journalErrorLogged = false
	journalMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records an event in the ring buffer, fans it out to subscribers and
// appends it to the journal when one is set. It returns the JSON encoding.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	eventsTotal.WithLabelValues(name).Inc()
	broadcast(e)

	journalMu.RLock()
	j := journal
	journalMu.RUnlock()

	if j != nil {
		sessionID, _ := fields["session_id"].(string)
		if err := j.Append(ts, level, name, msg, fields, sessionID); err != nil {
			reportJournalError(err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// reportJournalError records the first journal failure as system.error.
// It goes straight to the buffer, not through Emit, so a failing journal
// cannot recurse.
func reportJournalError(err error) {
	journalMu.Lock()
	if journalErrorLogged {
		journalMu.Unlock()
		return
	}
	journalErrorLogged = true
	journalMu.Unlock()

	errEvent := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "journal append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	}
	buffer.Add(errEvent)
	eventsTotal.WithLabelValues(errEvent.Name).Inc()
	broadcast(errEvent)
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
