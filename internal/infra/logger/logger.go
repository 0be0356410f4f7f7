package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Options configures the root logger.
type Options struct {
	Level   string
	Output  io.Writer // Default: os.Stderr.
	NoColor bool
	// JSON writes one JSON object per line instead of the console format.
	JSON bool
}

// New creates a colored console logger for module.
func New(module string, level string) waLog.Logger {
	return NewWithOptions(module, Options{Level: level})
}

// NewWithOptions creates a logger for module. Sub-loggers created with Sub
// carry their module name as the "sublogger" field.
func NewWithOptions(module string, opts Options) waLog.Logger {
	return waLog.Zerolog(Zerolog(module, opts))
}

// Zerolog builds the underlying zerolog logger.
func Zerolog(module string, opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    opts.NoColor,
			TimeFormat: "15:04:05.000",
		}
	}

	ctx := zerolog.New(out).Level(parseLevel(opts.Level)).With().Timestamp()
	if module != "" {
		ctx = ctx.Str("module", module)
	}
	return ctx.Logger()
}

// parseLevel converts string level to a zerolog level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
