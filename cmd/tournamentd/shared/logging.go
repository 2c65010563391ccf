package shared

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// SetupLogger configures a charmbracelet logger on stderr at the named level.
// Without color the output is plain ASCII whatever the terminal supports.
func SetupLogger(level string, color bool) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})

	if color {
		logger.SetColorProfile(termenv.NewOutput(os.Stderr).EnvColorProfile())
	} else {
		logger.SetColorProfile(termenv.Ascii)
	}
	logger.SetStyles(styles())
	return logger, nil
}

func styles() *log.Styles {
	s := log.DefaultStyles()
	s.Levels[log.DebugLevel] = levelStyle("DEBU", "63")
	s.Levels[log.InfoLevel] = levelStyle("INFO", "86")
	s.Levels[log.WarnLevel] = levelStyle("WARN", "192")
	s.Levels[log.ErrorLevel] = levelStyle("ERRO", "204")
	s.Levels[log.FatalLevel] = levelStyle("FATA", "134")
	s.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	s.Values["error"] = lipgloss.NewStyle().Bold(true)
	return s
}

func levelStyle(label, color string) lipgloss.Style {
	return lipgloss.NewStyle().
		SetString(label).
		Bold(true).
		MaxWidth(4).
		Foreground(lipgloss.Color(color))
}
