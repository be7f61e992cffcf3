package store

import (
	"testing"
	"time"
)

func TestAppendAndEntriesSince(t *testing.T) {
	s := New(t.TempDir(), nil)

	ok, err := s.Append("c1", LogEntry{Ts: "1", User: "u1", Text: "hello"})
	if err != nil || !ok {
		t.Fatalf("Append: ok=%v err=%v", ok, err)
	}
	ok, err = s.Append("c1", LogEntry{Ts: "2", User: "u1", Text: "world"})
	if err != nil || !ok {
		t.Fatalf("Append: ok=%v err=%v", ok, err)
	}

	entries, err := s.EntriesSince("c1", "1")
	if err != nil {
		t.Fatalf("EntriesSince: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "world" {
		t.Fatalf("got %+v, want just the ts=2 entry", entries)
	}

	last, err := s.LastTs("c1")
	if err != nil || last != "2" {
		t.Fatalf("LastTs = %q, %v, want 2", last, err)
	}
}

func TestAppendDedupWindow(t *testing.T) {
	s := New(t.TempDir(), nil)

	ok, err := s.Append("c1", LogEntry{Ts: "5", Text: "first"})
	if err != nil || !ok {
		t.Fatalf("first append: ok=%v err=%v", ok, err)
	}

	ok, err = s.Append("c1", LogEntry{Ts: "5", Text: "duplicate"})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate (channelID, ts) to be suppressed")
	}

	entries, err := s.EntriesSince("c1", "")
	if err != nil {
		t.Fatalf("EntriesSince: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestAppendDedupExpiresAfterWindow(t *testing.T) {
	s := New(t.TempDir(), nil)
	key := "c1|9"

	s.markSeen(key)
	s.dedupMu.Lock()
	s.dedup[key] = time.Now().Add(-time.Second) // force expiry
	s.dedupMu.Unlock()

	if s.isDuplicate(key) {
		t.Fatal("expected expired dedup entry to be pruned, not reported as duplicate")
	}
}

func TestEntriesSinceMissingChannel(t *testing.T) {
	s := New(t.TempDir(), nil)
	entries, err := s.EntriesSince("never-seen", "")
	if err != nil {
		t.Fatalf("EntriesSince on missing channel: %v", err)
	}
	if entries != nil {
		t.Fatalf("got %+v, want nil", entries)
	}
}

func TestSanitizeAttachmentName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":       "report.pdf",
		"weird name!!.png": "weird_name__.png",
		"../../etc/passwd": ".._.._etc_passwd",
	}
	for in, want := range cases {
		if got := SanitizeAttachmentName(in); got != want {
			t.Errorf("SanitizeAttachmentName(%q) = %q, want %q", in, got, want)
		}
	}
}
