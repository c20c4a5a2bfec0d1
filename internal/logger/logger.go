// Package logger provides a minimal leveled logger shared by all drivebridge
// components.
//
// The logger is intentionally simple: package-level functions, printf-style
// formatting, a single configurable output and minimum level. Components log
// through this package instead of carrying logger instances around.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	// FormatText emits "[timestamp] [LEVEL] message" lines.
	FormatText = "text"

	// FormatJSON emits one JSON object per line with ts/level/msg fields.
	FormatJSON = "json"
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	format       = FormatText
	logger       = stdlog.New(os.Stdout, "", 0)
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the minimum level that will be emitted.
// Unknown values leave the current level unchanged.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat selects the output format: FormatText (default) or FormatJSON.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(f) {
	case FormatJSON:
		format = FormatJSON
	case FormatText:
		format = FormatText
	}
}

// SetOutput redirects log output. The default is stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func log(level Level, f string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	message := fmt.Sprintf(f, v...)

	if format == FormatJSON {
		line, err := json.Marshal(map[string]string{
			"ts":    time.Now().Format(time.RFC3339),
			"level": level.String(),
			"msg":   message,
		})
		if err == nil {
			logger.Println(string(line))
		}
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	logger.Println(fmt.Sprintf("[%s] [%s] ", timestamp, level.String()) + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
