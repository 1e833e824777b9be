package logger

import "testing"

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"prod", "production", "dev", ""} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		l.Debug("debug", "k", "v")
		l.Info("info", "k", "v")
		l.Warn("warn", "k", "v")
		l.Error("error", "k", "v")
		l.With("component", "test").Info("child")
		l.Sync()
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Info("discarded", "k", "v")
	l.Sync()
}
