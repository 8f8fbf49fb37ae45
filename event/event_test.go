package event

import (
	"testing"
	"time"
)

func TestNormalizeBasic(t *testing.T) {
	n := NewNormalizer("mybot")
	ev, ok := n.Normalize(PlatformTwitch, "SomeViewer", "Hello World")
	if !ok {
		t.Fatal("expected event to pass normalization")
	}
	if ev.Username != "someviewer" {
		t.Errorf("Username = %q, want someviewer", ev.Username)
	}
	if ev.Message != "hello world" {
		t.Errorf("Message = %q, want lowercased copy", ev.Message)
	}
	if ev.Display != "Hello World" {
		t.Errorf("Display = %q, want original casing", ev.Display)
	}
	if ev.Platform != PlatformTwitch {
		t.Errorf("Platform = %q, want twitch", ev.Platform)
	}
	if time.Since(ev.ReceivedAt) > time.Minute {
		t.Errorf("ReceivedAt not stamped: %v", ev.ReceivedAt)
	}
}

func TestNormalizeDropRules(t *testing.T) {
	n := NewNormalizer("MyBot", "Nightbot")
	tests := []struct {
		name     string
		username string
		text     string
		want     bool
	}{
		{"regular viewer", "viewer1", "hi", true},
		{"bot's own message", "mybot", "hi", false},
		{"bot's own message mixed case", "MyBoT", "hi", false},
		{"system account own3d", "own3d", "hi", false},
		{"system account soundalerts", "SoundAlerts", "hi", false},
		{"extra ignored account", "nightbot", "hi", false},
		{"empty username", "", "hi", false},
		{"empty message", "viewer1", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := n.Normalize(PlatformTwitch, tt.username, tt.text)
			if ok != tt.want {
				t.Errorf("Normalize(%q, %q) ok = %v, want %v", tt.username, tt.text, ok, tt.want)
			}
		})
	}
}

func TestIgnores(t *testing.T) {
	n := NewNormalizer("mybot")
	if !n.Ignores("own3d") {
		t.Error("expected own3d to be ignored")
	}
	if !n.Ignores("MYBOT") {
		t.Error("expected bot identity to be ignored")
	}
	if n.Ignores("viewer1") {
		t.Error("did not expect viewer1 to be ignored")
	}
}
