// Package logging provides the leveled, structured logger used throughout
// the solver and joint-graph packages in place of the standard library's
// log package.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level is a log severity, ordered DEBUG < INFO < WARN < ERROR.
type Level int8

const (
	// DEBUG is the most verbose level.
	DEBUG Level = iota
	// INFO is the default level.
	INFO
	// WARN marks a recoverable condition (spec.md §7 error kinds all log at this level).
	WARN
	// ERROR marks a condition the caller should investigate; never emitted by the solver itself,
	// since the solver never aborts a frame.
	ERROR
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "Debug"
	case INFO:
		return "Info"
	case WARN:
		return "Warn"
	case ERROR:
		return "Error"
	default:
		return fmt.Sprintf("Level(%d)", int8(l))
	}
}

// LevelFromString parses a level name, accepting "warning" as an alias for "warn".
func LevelFromString(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// MarshalJSON implements json.Marshaler.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := LevelFromString(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
