package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lucasnoah/hookforge/internal/issues"
)

// EventType names the kind of a logged event.
type EventType string

const (
	EventStage EventType = "stage"
	EventIssue EventType = "issue"
)

// Event is one line of the JSONL event log.
type Event struct {
	Timestamp time.Time     `json:"ts"`
	Type      EventType     `json:"type"`
	Session   string        `json:"session,omitempty"`
	Stage     string        `json:"stage,omitempty"`
	Status    string        `json:"status,omitempty"`
	Issue     *issues.Issue `json:"issue,omitempty"`
}

// EventLog appends events to a JSONL file.
type EventLog struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	session string
	now     func() time.Time
}

// OpenEventLog opens (or creates) path for appending.
func OpenEventLog(path, session string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventLog{file: f, encoder: json.NewEncoder(f), session: session, now: time.Now}, nil
}

func (e *EventLog) UpdateStageStatus(stage, status string) {
	e.write(Event{Type: EventStage, Stage: stage, Status: status})
}

func (e *EventLog) AddIssue(issue issues.Issue) {
	e.write(Event{Type: EventIssue, Stage: issue.Stage, Issue: &issue})
}

// write drops events on error; the event log never fails a run.
func (e *EventLog) write(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return
	}
	ev.Timestamp = e.now()
	ev.Session = e.session
	_ = e.encoder.Encode(ev)
}

// Close closes the underlying file.
func (e *EventLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// ReadEvents parses a JSONL event log.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("parse event: %w", err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}
