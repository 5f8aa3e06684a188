// Package logging standardises fusiond's log output: JSON lines on stdout
// with timestamp/severity/message keys, tagged with the service name and
// environment.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup builds the process-wide structured logger and installs it as the slog
// default. The stdlib logger is bridged into the same handler so third-party
// code that still calls log.Printf lands in the structured stream.
func Setup(service, env string) *slog.Logger {
	if service = strings.TrimSpace(service); service == "" {
		service = "fusiond"
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", service)}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
