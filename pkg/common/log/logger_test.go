package log

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, time.UTC)

func newTestLogger(buf *bytes.Buffer, level Level) *StandardLogger {
	return NewStandardLogger(
		WithOutput(buf),
		WithLevel(level),
		WithClock(func() time.Time { return fixedTime }),
	)
}

func TestStandardLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelDebug)

	tests := []struct {
		log  func(string, ...interface{})
		msg  string
		want string
	}{
		{logger.Debug, "debug message", "[2024-03-09 14:05:06.789] [DEBUG] debug message\n"},
		{logger.Info, "info message", "[2024-03-09 14:05:06.789] [INFO] info message\n"},
		{logger.Warn, "warn message", "[2024-03-09 14:05:06.789] [WARN] warn message\n"},
		{logger.Error, "error message", "[2024-03-09 14:05:06.789] [ERROR] error message\n"},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.log(tt.msg)
		if buf.String() != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, buf.String())
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelError)

	logger.Debug("This debug message should not appear")
	logger.Info("This info message should not appear")
	logger.Warn("This warning message should not appear")
	logger.Error("This error message should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") || !strings.Contains(output, "This error message should appear") {
		t.Errorf("Level filtering failed, got: %s", output)
	}
	if logger.GetLevel() != LevelError {
		t.Errorf("GetLevel failed, expected LevelError, got: %v", logger.GetLevel())
	}
}

func TestFormattedMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelInfo)

	logger.Info("Formatted %s with %d params", "message", 2)
	if !strings.HasSuffix(buf.String(), "] [INFO] Formatted message with 2 params\n") {
		t.Errorf("Formatted message failed, got: %s", buf.String())
	}
}

func TestFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, LevelInfo)

	logger.WithFields(map[string]interface{}{
		"strategy": "indexed",
		"key":      "row1",
		"cursor":   "owned",
	}).Info("Opened slice")

	want := "[2024-03-09 14:05:06.789] [INFO] cursor=owned key=row1 strategy=indexed Opened slice\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	parent := NewStandardLogger(
		WithOutput(&buf),
		WithInitialFields(map[string]interface{}{"table": "t1"}),
	)

	child := parent.WithField("component", "slice")
	override := child.WithField("table", "t2")

	child.Info("child")
	if !strings.Contains(buf.String(), " component=slice table=t1 child") {
		t.Errorf("Expected inherited fields, got: %s", buf.String())
	}

	buf.Reset()
	override.Info("override")
	if !strings.Contains(buf.String(), " component=slice table=t2 override") {
		t.Errorf("Expected overridden field, got: %s", buf.String())
	}

	buf.Reset()
	parent.Info("parent")
	if strings.Contains(buf.String(), "component=") {
		t.Errorf("Child fields leaked into parent: %s", buf.String())
	}

	// Derived loggers follow the parent's level
	buf.Reset()
	parent.SetLevel(LevelWarn)
	child.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected child to follow parent level, got: %s", buf.String())
	}
	if child.GetLevel() != LevelWarn {
		t.Errorf("Expected child level WARN, got %v", child.GetLevel())
	}
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	logger := NewStandardLogger(WithOutput(&buf), WithExitFunc(func(c int) { code = c }))

	logger.Fatal("cannot continue")
	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "[FATAL] cannot continue") {
		t.Errorf("Expected fatal entry, got: %s", buf.String())
	}
}

func TestDefaultLogger(t *testing.T) {
	original := GetDefaultLogger()
	defer SetDefaultLogger(original)

	var buf bytes.Buffer
	SetDefaultLogger(newTestLogger(&buf, LevelInfo))

	Info("Global info message")
	if !strings.Contains(buf.String(), "[INFO] Global info message") {
		t.Errorf("Global info logging failed, got: %s", buf.String())
	}
	buf.Reset()

	WithField("global", true).Info("Global with field")
	if !strings.Contains(buf.String(), "[INFO] global=true Global with field") {
		t.Errorf("Global logging with field failed, got: %s", buf.String())
	}
	buf.Reset()

	SetLevel(LevelError)
	Warn("suppressed")
	if buf.Len() != 0 {
		t.Errorf("Expected warning to be suppressed, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
		"Fatal":   LevelFatal,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if got := Level(9).String(); got != "LEVEL(9)" {
		t.Errorf("Expected LEVEL(9), got %s", got)
	}
}
