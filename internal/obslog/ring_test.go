package obslog

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestRingHookRetainsRecentEntries(t *testing.T) {
	hook := NewRingHook(3)
	logger := logrus.New()
	logger.AddHook(hook)
	logger.Out = io.Discard

	logger.Info("one")
	logger.Info("two")
	logger.Warn("three")
	logger.Error("four")

	entries := hook.Recent()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3 (capacity)", len(entries))
	}
	if entries[0].Message != "two" {
		t.Errorf("oldest retained entry = %q, want %q (entry \"one\" should have been evicted)", entries[0].Message, "two")
	}
	if entries[2].Message != "four" {
		t.Errorf("newest entry = %q, want %q", entries[2].Message, "four")
	}
}

func TestRingHookDefaultsCapacity(t *testing.T) {
	hook := NewRingHook(0)
	if hook.buf.Len() != defaultCapacity {
		t.Errorf("capacity = %d, want default %d", hook.buf.Len(), defaultCapacity)
	}
}
