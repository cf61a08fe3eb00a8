package player

import (
	"fmt"
	"log/slog"
)

// Logging helpers tagging records with a component attribute, rendered by
// the sys log handler.

func logPlayer(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "player"))
}

func logPlayerDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), slog.String("component", "player"))
}

func logPlayerWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), slog.String("component", "player"))
}

func logQueueDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), slog.String("component", "queue"))
}

func logQueueWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), slog.String("component", "queue"))
}
