package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

// captureLogOutputWithInit captures output by reinitializing the logger
// to write to a buffer. This tests the actual InitLogger ReplaceAttr logic.
func captureLogOutputWithInit(level Level, format Format, f func()) string {
	var buf bytes.Buffer
	InitLoggerTo(&buf, level, format)
	f()
	InitLogger(LevelInfo, FormatJSON)
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug level JSON format", LevelDebug, FormatJSON},
		{"Info level JSON format", LevelInfo, FormatJSON},
		{"Warn level JSON format", LevelWarn, FormatJSON},
		{"Error level JSON format", LevelError, FormatJSON},
		{"Info level Text format", LevelInfo, FormatText},
		{"Default level (invalid value)", Level(999), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("Expected logger to be initialized, got nil")
			}
		})
	}
	InitLogger(LevelInfo, FormatJSON)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if err != nil && !errors.Is(err, rerrors.ErrInvalidInput) {
				t.Errorf("error should be a validation error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestGetComparisonID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "Context with comparison ID",
			ctx:      WithComparisonID(context.Background(), "cmp-1"),
			expected: "cmp-1",
		},
		{
			name:     "Context without comparison ID",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "Context with wrong type value",
			ctx:      context.WithValue(context.Background(), ComparisonIDKey, 12345),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetComparisonID(tt.ctx); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"Debug", func() { Debug("debug message", "key", "value") }},
		{"Info", func() { Info("info message", "key", "value") }},
		{"Warn", func() { Warn("warning message", "key", "value") }},
		{"Error", func() { Error("error message", "key", "value") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if output := captureLogOutput(tt.fn); output == "" {
				t.Error("Expected log output, got empty string")
			}
		})
	}
}

func TestContextLoggingFunctions(t *testing.T) {
	ctx := WithComparisonID(context.Background(), "test-comparison-id")

	tests := []struct {
		name string
		fn   func()
	}{
		{"DebugContext", func() { DebugContext(ctx, "debug message") }},
		{"InfoContext", func() { InfoContext(ctx, "info message") }},
		{"WarnContext", func() { WarnContext(ctx, "warning message") }},
		{"ErrorContext", func() { ErrorContext(ctx, "error message") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.fn)
			if !strings.Contains(output, "test-comparison-id") {
				t.Errorf("Expected output to contain comparison ID: %s", output)
			}
		})
	}
}

func TestDomainEvents(t *testing.T) {
	ctx := WithComparisonID(context.Background(), "cmp-42")

	tests := []struct {
		name  string
		fn    func()
		wants []string
	}{
		{
			name:  "AttemptFailed",
			fn:    func() { AttemptFailed(ctx, "word", "accept-text", "paragraph 2 differs") },
			wants: []string{`"msg":"attempt_failed"`, `"granularity":"word"`, `"check":"accept-text"`, `"level":"WARN"`},
		},
		{
			name:  "Fallback",
			fn:    func() { Fallback(ctx, "bookmarks changed", 2) },
			wants: []string{`"msg":"fallback"`, `"attempts":2`, `"comparison_id":"cmp-42"`},
		},
		{
			name:  "ComparisonDone",
			fn:    func() { ComparisonDone(ctx, "rebuild", 3, 1500*time.Millisecond, "moves", 1) },
			wants: []string{`"msg":"comparison_done"`, `"mode":"rebuild"`, `"duration_ms":1500`, `"moves":1`},
		},
		{
			name:  "NumberingSkipped",
			fn:    func() { NumberingSkipped(ctx, "original", errors.New("bad lvl")) },
			wants: []string{`"msg":"numbering_skipped"`, `"error":"bad lvl"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.fn)
			for _, want := range tt.wants {
				if !strings.Contains(output, want) {
					t.Errorf("Expected %s in %s", want, output)
				}
			}
		})
	}
}

func TestReplaceAttrTimestamp(t *testing.T) {
	output := captureLogOutputWithInit(LevelInfo, FormatJSON, func() {
		Info("timestamp test")
	})
	if !strings.Contains(output, "timestamp test") {
		t.Fatalf("Expected output to contain test message: %s", output)
	}
	// RFC 3339 without fractional seconds
	if strings.Contains(output, ".000") || !strings.Contains(output, "T") {
		t.Errorf("Expected RFC3339 timestamp: %s", output)
	}
}

func TestLevelFiltering(t *testing.T) {
	output := captureLogOutputWithInit(LevelWarn, FormatText, func() {
		Info("hidden")
		Warn("shown")
	})
	if strings.Contains(output, "hidden") || !strings.Contains(output, "shown") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestLevelConstants(t *testing.T) {
	if LevelDebug >= LevelInfo || LevelInfo >= LevelWarn || LevelWarn >= LevelError {
		t.Error("Expected levels in increasing order")
	}
	if FormatJSON == FormatText {
		t.Error("Expected FormatJSON != FormatText")
	}
}
