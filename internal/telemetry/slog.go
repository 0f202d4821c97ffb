package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// serviceName tags every log record so aggregated logs from mixed deployments
// stay attributable to this server.
const serviceName = "secrelo-server"

// parseLevel maps a configuration string to a slog.Level. Unknown or empty
// values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs the process-wide slog default logger.
//
// format selects the output shape: "text" produces key=value lines for local
// development, anything else produces JSON for production ingestion. level is
// one of debug/info/warn/error (case-insensitive). Debug additionally records
// source file and line on every record.
//
// The default logger carries a service attribute so slog.Info/Warn/Error
// calls anywhere in the codebase are tagged without threading a *slog.Logger
// through call sites.
func SetupLogger(format, level string) {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler).With("service", serviceName))
	slog.Info("logger configured", "format", format, "level", lvl.String())
}
