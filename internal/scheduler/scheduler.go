// Package scheduler implements EventScheduler (spec.md §4.8): a
// filesystem-backed watcher over <workspace>/events/ that fires
// immediate, one-shot, and timezone-aware periodic events into the same
// dispatch path inbound chat messages take. Grounded on the teacher's
// original cron-job Scheduler for its watch/tick/mutex-guarded-map
// shape, generalized from an in-memory Job registry with natural-language
// parsing to filesystem-declared EventSpec files evaluated with
// robfig/cron/v3 (already a teacher dependency) for real cron-in-timezone
// semantics instead of the teacher's hand-rolled NextRunTime.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// EventSpec is the JSON shape of one file under <workspace>/events/, per
// spec.md §3. Unknown fields are ignored by encoding/json's default
// decode behavior; files with invalid schema are logged and skipped.
type EventSpec struct {
	Type      string `json:"type"` // "immediate" | "one-shot" | "periodic"
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
	At        string `json:"at,omitempty"`       // RFC3339 with offset, one-shot
	Schedule  string `json:"schedule,omitempty"` // 5-field cron, periodic
	Timezone  string `json:"timezone,omitempty"` // IANA zone, periodic
}

// Dispatcher is the destination for synthesized event text: the
// Orchestrator, which appends it to the channel's log and enqueues a run
// exactly as it would for an inbound chat message.
type Dispatcher interface {
	Dispatch(channelID, text string)
}

// Scheduler watches an events directory and fires EventSpec files into a
// Dispatcher on a 60-second tick.
type Scheduler struct {
	eventsDir  string
	dispatcher Dispatcher
	logger     *slog.Logger
	cronParser cron.Parser

	mu              sync.Mutex
	fired           map[string]bool   // immediate/one-shot: filename -> already fired
	lastFiredMinute map[string]string // periodic: filename -> minute key last fired
}

// New creates a Scheduler watching eventsDir.
func New(eventsDir string, dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		eventsDir:       eventsDir,
		dispatcher:      dispatcher,
		logger:          logger,
		cronParser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		fired:           make(map[string]bool),
		lastFiredMinute: make(map[string]string),
	}
}

// Run blocks, watching eventsDir for file creation and ticking every 60
// seconds, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.eventsDir, 0o755); err != nil {
		return fmt.Errorf("create events dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.eventsDir); err != nil {
		return fmt.Errorf("watch events dir: %w", err)
	}

	s.tick()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				s.evaluate(ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("event watcher error", "error", err)
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick re-evaluates every file currently in the events directory.
func (s *Scheduler) tick() {
	entries, err := os.ReadDir(s.eventsDir)
	if err != nil {
		s.logger.Warn("read events dir", "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s.evaluate(filepath.Join(s.eventsDir, e.Name()))
	}
}

func (s *Scheduler) evaluate(path string) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read event file", "file", name, "error", err)
		}
		return
	}

	var spec EventSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		s.logger.Warn("invalid event file, skipping", "file", name, "error", err)
		return
	}

	switch spec.Type {
	case "immediate":
		s.fireImmediate(path, name, spec)
	case "one-shot":
		s.fireOneShot(path, name, spec)
	case "periodic":
		s.firePeriodic(name, spec)
	default:
		s.logger.Warn("unknown event type, skipping", "file", name, "type", spec.Type)
	}
}

func (s *Scheduler) fireImmediate(path, name string, spec EventSpec) {
	s.mu.Lock()
	if s.fired[name] {
		s.mu.Unlock()
		return
	}
	s.fired[name] = true
	s.mu.Unlock()

	text := fmt.Sprintf("[EVENT:%s:immediate:%s] %s", name, time.Now().Format(time.RFC3339), spec.Text)
	s.dispatcher.Dispatch(spec.ChannelID, text)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("delete fired event file", "file", name, "error", err)
	}
}

func (s *Scheduler) fireOneShot(path, name string, spec EventSpec) {
	s.mu.Lock()
	if s.fired[name] {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	at, err := time.Parse(time.RFC3339, spec.At)
	if err != nil {
		s.logger.Warn("invalid one-shot 'at', skipping", "file", name, "error", err)
		return
	}
	if time.Now().Before(at) {
		return
	}

	s.mu.Lock()
	if s.fired[name] {
		s.mu.Unlock()
		return
	}
	s.fired[name] = true
	s.mu.Unlock()

	text := fmt.Sprintf("[EVENT:%s:one-shot:%s] %s", name, at.Format(time.RFC3339), spec.Text)
	s.dispatcher.Dispatch(spec.ChannelID, text)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("delete fired event file", "file", name, "error", err)
	}
}

// firePeriodic evaluates spec.Schedule in spec.Timezone against the
// current minute, firing at most once per (file, minute), per spec.md
// §4.8 and §9's cron-in-timezone note.
func (s *Scheduler) firePeriodic(name string, spec EventSpec) {
	loc, err := time.LoadLocation(spec.Timezone)
	if err != nil {
		s.logger.Warn("invalid periodic timezone, skipping", "file", name, "timezone", spec.Timezone, "error", err)
		return
	}

	schedule, err := s.cronParser.Parse(spec.Schedule)
	if err != nil {
		s.logger.Warn("invalid periodic cron expression, skipping", "file", name, "schedule", spec.Schedule, "error", err)
		return
	}

	now := time.Now().In(loc).Truncate(time.Minute)
	minuteKey := now.Format("2006-01-02T15:04")

	s.mu.Lock()
	if s.lastFiredMinute[name] == minuteKey {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	prev := now.Add(-time.Minute)
	next := schedule.Next(prev).Truncate(time.Minute)
	if !next.Equal(now) {
		return
	}

	s.mu.Lock()
	s.lastFiredMinute[name] = minuteKey
	s.mu.Unlock()

	text := fmt.Sprintf("[EVENT:%s:periodic:%s] %s", name, now.Format(time.RFC3339), spec.Text)
	s.dispatcher.Dispatch(spec.ChannelID, text)
}
