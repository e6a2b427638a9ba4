package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Interface interface {
	Debug(message interface{}, args ...interface{})
	Info(message string, args ...interface{})
	Warn(message string, args ...interface{})
	Error(message interface{}, args ...interface{})
	Fatal(message interface{}, args ...interface{})
	With(fields map[string]interface{}) Interface
}

type Logger struct {
	logger *zerolog.Logger
}

var _ Interface = (*Logger)(nil)

func New(level string) *Logger {
	var l zerolog.Level

	switch strings.ToLower(level) {
	case "error":
		l = zerolog.ErrorLevel
	case "warn":
		l = zerolog.WarnLevel
	case "info":
		l = zerolog.InfoLevel
	case "debug":
		l = zerolog.DebugLevel
	default:
		l = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(l)

	skipFrameCount := 3
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + skipFrameCount).
		Logger()

	return &Logger{
		logger: &logger,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	logger := zerolog.Nop()

	return &Logger{logger: &logger}
}

func (l *Logger) Debug(message interface{}, args ...interface{}) {
	l.msg("debug", message, args...)
}

func (l *Logger) Info(message string, args ...interface{}) {
	l.log(message, args...)
}

func (l *Logger) Warn(message string, args ...interface{}) {
	if len(args) == 0 {
		l.logger.Warn().Msg(message)
	} else {
		l.logger.Warn().Msgf(message, args...)
	}
}

func (l *Logger) Error(message interface{}, args ...interface{}) {
	if l.logger.GetLevel() == zerolog.DebugLevel {
		l.Debug(message, args...)
	}

	l.msg("error", message, args...)
}

func (l *Logger) Fatal(message interface{}, args ...interface{}) {
	l.msg("fatal", message, args...)

	os.Exit(1)
}

func (l *Logger) With(fields map[string]interface{}) Interface {
	logger := l.logger.With().Fields(fields).Logger()

	return &Logger{logger: &logger}
}

func (l *Logger) log(message string, args ...interface{}) {
	if len(args) == 0 {
		l.logger.Info().Msg(message)
	} else {
		l.logger.Info().Msgf(message, args...)
	}
}

func (l *Logger) msg(level string, message interface{}, args ...interface{}) {
	switch msg := message.(type) {
	case error:
		l.event(level).Err(msg).Msg(joinArgs(args...))
	case string:
		if len(args) == 0 {
			l.event(level).Msg(msg)
		} else {
			l.event(level).Msgf(msg, args...)
		}
	default:
		l.event(level).Msg(fmt.Sprintf("%s message %v has unknown type %v", level, message, msg))
	}
}

func (l *Logger) event(level string) *zerolog.Event {
	switch level {
	case "debug":
		return l.logger.Debug()
	case "fatal":
		return l.logger.WithLevel(zerolog.FatalLevel)
	default:
		return l.logger.Error()
	}
}

func joinArgs(args ...interface{}) string {
	if len(args) == 0 {
		return ""
	}

	if format, ok := args[0].(string); ok {
		if len(args) == 1 {
			return format
		}

		return fmt.Sprintf(format, args[1:]...)
	}

	return fmt.Sprint(args...)
}
