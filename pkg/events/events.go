package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SettingChanged describes one account setting change: who it happened to,
// which setting, and the old and new values.
type SettingChanged struct {
	Username string    `json:"username"`
	Setting  string    `json:"setting"`
	Old      any       `json:"old"`
	New      any       `json:"new"`
	At       time.Time `json:"at"`
}

// Emitter delivers setting-change notifications. Emission is fire-and-forget:
// callers log failures but never fail the surrounding operation on them.
type Emitter interface {
	EmitSettingChanged(ctx context.Context, event SettingChanged) error
}

// SlogEmitter writes setting-change events to the structured log.
type SlogEmitter struct{}

// NewSlogEmitter creates a log-backed event emitter.
func NewSlogEmitter() *SlogEmitter {
	return &SlogEmitter{}
}

// EmitSettingChanged logs the event.
func (e *SlogEmitter) EmitSettingChanged(ctx context.Context, event SettingChanged) error {
	slog.Info("Setting changed",
		"username", event.Username,
		"setting", event.Setting,
		"old", event.Old,
		"new", event.New)
	return nil
}

// Recorder captures emitted events in memory (for testing).
type Recorder struct {
	mu     sync.Mutex
	events []SettingChanged
}

// NewRecorder creates a recording emitter.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// EmitSettingChanged records the event.
func (r *Recorder) EmitSettingChanged(ctx context.Context, event SettingChanged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []SettingChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SettingChanged(nil), r.events...)
}
