package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	maxMessageSize = 60
	maxFileSize    = 22
	maxLineSize    = 4
)

var (
	timestampColor = color.New(color.FgHiCyan, color.Italic)
	callerColor    = color.New(color.FgHiMagenta)
	messageColor   = color.New(color.FgWhite)
	fieldKeyColor  = color.New(color.FgHiYellow)
	fieldValColor  = color.New(color.FgCyan)
)

var logLevels = map[string]logLevel{
	zerolog.LevelTraceValue: {
		Text:  "TRAC",
		Emoji: "◇",
		Color: color.New(color.FgHiBlack, color.Bold),
	},
	zerolog.LevelDebugValue: {
		Text:  "DEBG",
		Emoji: "◈",
		Color: color.New(color.FgHiBlue, color.Bold),
	},
	zerolog.LevelInfoValue: {
		Text:  "INFO",
		Emoji: "◉",
		Color: color.New(color.FgHiGreen, color.Bold),
	},
	zerolog.LevelWarnValue: {
		Text:  "WARN",
		Emoji: "◎",
		Color: color.New(color.FgHiYellow, color.Bold),
	},
	zerolog.LevelErrorValue: {
		Text:  "ERRO",
		Emoji: "✖",
		Color: color.New(color.FgHiRed, color.Bold),
	},
	zerolog.LevelFatalValue: {
		Text:  "FATL",
		Emoji: "☠",
		Color: color.New(color.FgHiRed, color.Bold),
	},
}

type logLevel struct {
	Text  string
	Emoji string
	Color *color.Color
}

type Config struct {
	Level          string
	DateTimeLayout string
	Colored        bool
	JSONFormat     bool
	UseEmoji       bool
	Output         io.Writer
}

type consoleFormatter struct {
	config *Config
}

type ZLogX struct {
	*zerolog.Logger
	config *Config
}

// New creates a new enhanced logger instance
func New(config *Config) (*ZLogX, error) {
	if config == nil {
		config = &Config{
			Level:          "info",
			DateTimeLayout: time.RFC3339,
			Colored:        true,
		}
	}

	if config.Output == nil {
		config.Output = os.Stdout
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("nível de log inválido: %w", err)
	}

	var logger zerolog.Logger
	if config.JSONFormat {
		logger = zerolog.New(config.Output).With().Timestamp().Logger()
	} else {
		logger = createConsoleLogger(config)
	}

	logger = logger.Level(level).With().CallerWithSkipFrameCount(3).Logger()

	return &ZLogX{
		Logger: &logger,
		config: config,
	}, nil
}

// NewNop returns a logger that discards everything, used by tests
func NewNop() *ZLogX {
	logger := zerolog.Nop()
	return &ZLogX{Logger: &logger, config: &Config{}}
}

// createConsoleLogger creates a console formatted logger output
func createConsoleLogger(config *Config) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        config.Output,
		NoColor:    !config.Colored,
		TimeFormat: config.DateTimeLayout,
		PartsOrder: []string{"time", "level", "caller", "message"},
	}

	if config.Colored {
		formatter := &consoleFormatter{config: config}

		output.FormatMessage = formatter.formatMessage
		output.FormatCaller = formatter.formatCaller
		output.FormatLevel = formatter.formatLevel
		output.FormatTimestamp = formatter.formatTimestamp
		output.FormatFieldName = formatter.formatFieldName
		output.FormatFieldValue = formatter.formatFieldValue
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// formatLevel formats the log level with color and emoji
func (f *consoleFormatter) formatLevel(i any) string {
	levelStr, ok := i.(string)
	if !ok {
		return f.formatUnknownLevel()
	}

	level, exists := logLevels[levelStr]
	if !exists {
		return f.formatUnknownLevel()
	}

	emoji := ""
	if f.config.UseEmoji {
		emoji = level.Emoji + " "
	}

	return level.Color.Sprintf(" %s%s ", emoji, level.Text)
}

func (f *consoleFormatter) formatUnknownLevel() string {
	emoji := ""
	if f.config.UseEmoji {
		emoji = "❓ "
	}
	return color.New(color.FgHiWhite).Sprintf(" %sUNKN ", emoji)
}

// formatMessage pads short messages so fields line up in a column
func (f *consoleFormatter) formatMessage(i any) string {
	msg, ok := i.(string)
	if !ok || len(msg) == 0 {
		return messageColor.Sprint("│ (empty message)")
	}

	if strings.Contains(msg, "\n") {
		lines := strings.Split(msg, "\n")
		for idx, line := range lines {
			lines[idx] = messageColor.Sprintf("│ %s", line)
		}
		return strings.Join(lines, "\n")
	}

	if len(msg) < maxMessageSize {
		msg = fmt.Sprintf("%-*s", maxMessageSize, msg)
	}

	return messageColor.Sprintf("│ %s", msg)
}

// formatCaller formats caller information with file and line number
func (f *consoleFormatter) formatCaller(i any) string {
	fname, ok := i.(string)
	if !ok || len(fname) == 0 {
		return ""
	}

	caller := filepath.Base(fname)
	parts := strings.Split(caller, ":")
	if len(parts) != 2 {
		return callerColor.Sprintf("┤ %s ├", caller)
	}

	file := strings.TrimSuffix(parts[0], ".go")
	if len(file) > maxFileSize {
		file = file[:maxFileSize]
	} else {
		file = fmt.Sprintf("%-*s", maxFileSize, file)
	}

	line := parts[1]
	if len(line) > maxLineSize {
		line = line[len(line)-maxLineSize:]
	} else {
		line = fmt.Sprintf("%0*s", maxLineSize, line)
	}

	return callerColor.Sprintf("┤ %s:%s ├", file, line)
}

// formatTimestamp formats timestamps in local time
func (f *consoleFormatter) formatTimestamp(i any) string {
	strTime, ok := i.(string)
	if !ok {
		return timestampColor.Sprintf("[ %v ]", i)
	}

	ts, err := time.ParseInLocation(time.RFC3339, strTime, time.Local)
	if err != nil {
		return timestampColor.Sprintf("[ %s ]", strTime)
	}

	return timestampColor.Sprintf("[ %s ]", ts.In(time.Local).Format(f.config.DateTimeLayout))
}

func (f *consoleFormatter) formatFieldName(i any) string {
	name, ok := i.(string)
	if !ok {
		return fmt.Sprintf("%v", i)
	}
	return fieldKeyColor.Sprint(name)
}

// formatFieldValue formats field values based on type
func (f *consoleFormatter) formatFieldValue(i any) string {
	switch v := i.(type) {
	case string:
		if strings.ContainsAny(v, " \t\n\r\"'") {
			return "=" + fieldValColor.Sprintf("%q", v)
		}
		return "=" + fieldValColor.Sprint(v)
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return fieldValColor.Sprintf("=%d", v)
	case float32, float64:
		return fieldValColor.Sprintf("=%.2f", v)
	case bool:
		if v {
			return "=" + color.HiGreenString("true")
		}
		return "=" + color.HiRedString("false")
	case nil:
		return "=" + color.HiBlackString("null")
	default:
		return fieldValColor.Sprintf("=%v", v)
	}
}

// Success logs a success message with optional emoji
func (zl *ZLogX) Success(msg string) {
	if zl.config.UseEmoji {
		msg = "✅ " + msg
	}
	zl.Info().Msg(msg)
}

// Failure logs a failure message with optional emoji
func (zl *ZLogX) Failure(msg string) {
	if zl.config.UseEmoji {
		msg = "❌ " + msg
	}
	zl.Error().Msg(msg)
}

// Benchmark logs how long an operation took
func (zl *ZLogX) Benchmark(name string, duration time.Duration) {
	msg := "Duração:"

	if zl.config.UseEmoji {
		msg = fmt.Sprintf("%s %s", durationEmoji(duration), msg)
	}

	zl.Debug().
		Str("duration", duration.Round(time.Millisecond).String()).
		Msgf("%s %s", msg, name)
}

// durationEmoji returns emoji based on operation duration
func durationEmoji(duration time.Duration) string {
	switch {
	case duration < 100*time.Millisecond:
		return "⚡"
	case duration < time.Second:
		return "🚀"
	case duration < 10*time.Second:
		return "🚶"
	default:
		return "🐌"
	}
}
