// Package sessioncontext bridges a channel's human-readable log.jsonl to
// its model transcript context.jsonl, and trims that transcript by logical
// turn, per spec.md §4.5.
package sessioncontext

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/motherhost/mother/internal/llm"
	"github.com/motherhost/mother/internal/store"
)

// MaxTurns is the number of trailing turns kept on trim.
const MaxTurns = 10

// SessionContext owns one channel's context.jsonl.
type SessionContext struct {
	channelDir string
}

// New creates a SessionContext rooted at channelDir.
func New(channelDir string) *SessionContext {
	return &SessionContext{channelDir: channelDir}
}

func (s *SessionContext) path() string {
	return filepath.Join(s.channelDir, "context.jsonl")
}

func (s *SessionContext) summaryPath() string {
	return filepath.Join(s.channelDir, "session.json")
}

// SessionSummary is a lightweight, operator-facing health snapshot for one
// channel — not the transcript, and never read back into the prompt. It
// exists so an operator can check a channel's health without parsing
// context.jsonl. Grounded on the teacher's internal/session package's
// persisted-session shape, adapted from one global session to one ledger
// per channel.
type SessionSummary struct {
	ChannelID  string    `json:"channelId"`
	Turns      int       `json:"turns"`
	LastRunAt  time.Time `json:"lastRunAt"`
	TotalUsage llm.Usage `json:"totalUsage"`
}

// SaveSummary loads the channel's existing ledger (if any), folds in one
// more completed run, and writes it back to <channelDir>/session.json.
func (s *SessionContext) SaveSummary(channelID string, runUsage llm.Usage) error {
	var summary SessionSummary
	if data, err := os.ReadFile(s.summaryPath()); err == nil {
		_ = json.Unmarshal(data, &summary)
	}

	summary.ChannelID = channelID
	summary.Turns++
	summary.LastRunAt = time.Now()
	summary.TotalUsage.Add(runUsage)

	if err := os.MkdirAll(s.channelDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.summaryPath(), data, 0o644)
}

// Load reads the persisted transcript, or returns an empty transcript if
// context.jsonl doesn't exist yet.
func (s *SessionContext) Load() ([]llm.Message, error) {
	f, err := os.Open(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var transcript []llm.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var msg llm.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		transcript = append(transcript, msg)
	}
	return transcript, scanner.Err()
}

// Save overwrites context.jsonl with transcript, one JSON object per line.
func (s *SessionContext) Save(transcript []llm.Message) error {
	if err := os.MkdirAll(s.channelDir, 0o755); err != nil {
		return err
	}

	tmp := s.path() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, msg := range transcript {
		line, err := json.Marshal(msg)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, s.path())
}

// HighWaterTs returns the ts of the most recent entry already materialized
// into the transcript, tracked as a sidecar since llm.Message carries no ts.
func (s *SessionContext) HighWaterTs() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.channelDir, ".context_ts"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (s *SessionContext) setHighWaterTs(ts string) error {
	return os.WriteFile(filepath.Join(s.channelDir, ".context_ts"), []byte(ts), 0o644)
}

// Sync appends every LogEntry newer than the transcript's high-water ts, up
// to and including upToTs, as user/assistant messages, per spec.md §4.5.
func (s *SessionContext) Sync(st *store.Store, channelID, upToTs string) ([]llm.Message, error) {
	transcript, err := s.Load()
	if err != nil {
		return nil, err
	}

	highWater, err := s.HighWaterTs()
	if err != nil {
		return nil, err
	}

	entries, err := st.EntriesSince(channelID, highWater)
	if err != nil {
		return nil, err
	}

	lastTs := highWater
	for _, e := range entries {
		if upToTs != "" && e.Ts > upToTs {
			break
		}
		transcript = append(transcript, entryToMessage(e))
		lastTs = e.Ts
	}

	if lastTs != highWater {
		if err := s.setHighWaterTs(lastTs); err != nil {
			return nil, err
		}
	}

	return transcript, s.Save(transcript)
}

func entryToMessage(e store.LogEntry) llm.Message {
	if e.IsBot {
		return llm.Message{Role: llm.RoleAssistant, Content: []llm.Part{{Kind: llm.PartText, Text: e.Text}}, StopReason: "endTurn"}
	}
	prefix := headerPrefix(e)
	return llm.Message{Role: llm.RoleUser, Content: []llm.Part{{Kind: llm.PartText, Text: prefix + e.Text}}}
}

func headerPrefix(e store.LogEntry) string {
	name := e.UserName
	if name == "" {
		name = e.User
	}
	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}
	return fmt.Sprintf("[%s] [%s]: ", date.Format(time.RFC3339), name)
}

var headerPattern = regexp.MustCompile(`^\[[^\]]+\] \[[^\]]+\]: `)

// StripHeader removes the "[<rfc3339>] [<userName>]: " prefix synthesized
// by headerPrefix, if present.
func StripHeader(text string) string {
	return headerPattern.ReplaceAllString(text, "")
}

// Trim partitions transcript into turns (a user message through the
// message(s) preceding the next user message) and keeps only the last
// MaxTurns. When any turn is dropped, a synthetic leading user message is
// prepended summarizing the last dropped turn's opening text.
func Trim(transcript []llm.Message) []llm.Message {
	turns := partitionTurns(transcript)
	if len(turns) <= MaxTurns {
		return transcript
	}

	dropped := turns[:len(turns)-MaxTurns]
	kept := turns[len(turns)-MaxTurns:]

	lastDroppedUserText := firstUserText(dropped[len(dropped)-1])
	if len(lastDroppedUserText) > 100 {
		lastDroppedUserText = lastDroppedUserText[:100]
	}

	notice := llm.Message{
		Role: llm.RoleUser,
		Content: []llm.Part{{
			Kind: llm.PartText,
			Text: fmt.Sprintf("[Prior context trimmed. Last topic before trim: %s]", lastDroppedUserText),
		}},
	}

	var out []llm.Message
	out = append(out, notice)
	for _, t := range kept {
		out = append(out, t...)
	}
	return out
}

// partitionTurns splits transcript into maximal runs that each begin with
// a user message and end just before the next user message.
func partitionTurns(transcript []llm.Message) [][]llm.Message {
	var turns [][]llm.Message
	var current []llm.Message

	for _, msg := range transcript {
		if msg.Role == llm.RoleUser {
			if len(current) > 0 {
				turns = append(turns, current)
			}
			current = []llm.Message{msg}
			continue
		}
		current = append(current, msg)
	}
	if len(current) > 0 {
		turns = append(turns, current)
	}
	return turns
}

func firstUserText(turn []llm.Message) string {
	if len(turn) == 0 {
		return ""
	}
	for _, p := range turn[0].Content {
		if p.Kind == llm.PartText {
			return StripHeader(p.Text)
		}
	}
	return ""
}
