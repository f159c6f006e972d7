package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipharvest/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "empty level defaults to info", cfg: &config.LoggingConfig{}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{
			name: "file output",
			cfg:  &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestConsoleOutputIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithConsole(&config.LoggingConfig{Level: "debug"}, &buf)
	if err != nil {
		t.Fatalf("newWithConsole() error = %v", err)
	}

	l.WithField("entity_id", "42").InfoWithFields("clips fetched", map[string]interface{}{
		"pages": 3,
	})

	out := buf.String()
	for _, want := range []string{"clips fetched", "entity_id", "42", "pages", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipharvest.log")
	var console bytes.Buffer

	l, err := newWithConsole(&config.LoggingConfig{Level: "info", File: path}, &console)
	if err != nil {
		t.Fatalf("newWithConsole() error = %v", err)
	}
	l.WithError(errors.New("boom")).Error("download failed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"download failed"`) {
		t.Errorf("expected JSON log line in file, got %q", data)
	}
	if !strings.Contains(string(data), `"app":"clipharvest"`) {
		t.Errorf("expected app field in file output, got %q", data)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	base, err := New(&config.LoggingConfig{Level: "info"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	parent := base.WithField("a", 1).(*zerologLogger)
	_ = parent.WithField("b", 2)

	if _, ok := parent.fields["b"]; ok {
		t.Error("child field leaked into parent logger")
	}
}

func TestTestLoggerCapturesChildren(t *testing.T) {
	tl := NewTestLogger()

	tl.WithField("clip_id", "abc").WithError(errors.New("no replay")).Warn("skipped")
	tl.Info("done")

	msgs := tl.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Fields["clip_id"] != "abc" || msgs[0].Error == nil {
		t.Errorf("expected field and error on first message, got %+v", msgs[0])
	}
	if len(tl.GetMessagesByLevel("WARN")) != 1 {
		t.Error("expected one WARN message")
	}
	if !tl.HasMessage("done") {
		t.Error("expected to find message 'done'")
	}

	tl.Clear()
	if len(tl.GetMessages()) != 0 {
		t.Error("expected Clear to drop messages")
	}
}

func TestOrFallsBackToGlobal(t *testing.T) {
	if Or(nil) == nil {
		t.Error("Or(nil) returned nil")
	}
	nop := NewNopLogger()
	if Or(nop) != nop {
		t.Error("Or did not return the given logger")
	}
}
