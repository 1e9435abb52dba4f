package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWithOptionsWritesJSONAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "loand.log")
	logger, closer := SetupWithOptions(Options{
		Service: "loand",
		Env:     "test",
		Level:   "debug",
		Output:  &buf,
		File:    &FileSink{Path: path, MaxSizeMB: 1},
	})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Debug("borrow request created", "engine", "fixed")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"message":  "borrow request created",
		"severity": "DEBUG",
		"service":  "loand",
		"env":      "test",
		"engine":   "fixed",
	} {
		if record[key] != want {
			t.Fatalf("%s = %v, want %q", key, record[key], want)
		}
	}
	if _, ok := record["timestamp"]; !ok {
		t.Fatalf("timestamp key missing")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "borrow request created") {
		t.Fatalf("file sink missing record")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("jwt_secret", "hunter2"); got.Value.String() != RedactedValue {
		t.Fatalf("secret not masked: %v", got)
	}
	if got := MaskField("engine", "stable"); got.Value.String() != "stable" {
		t.Fatalf("allowlisted key masked: %v", got)
	}
	if got := MaskField("token", ""); got.Value.String() != "" {
		t.Fatalf("empty value altered")
	}
}
