package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// UnmarshalText implements encoding.TextUnmarshaler for viper and envconfig
func (f *LogFormat) UnmarshalText(text []byte) error {
	value := LogFormat(strings.ToLower(string(text)))
	switch value {
	case FormatText, FormatJSON:
		*f = value
		return nil
	default:
		return fmt.Errorf("invalid log format %q, must be %q or %q", string(text), FormatText, FormatJSON)
	}
}

// NewLogger configures the global logrus logger and returns it, so that
// dependencies logging through logrus share the format.
func NewLogger(format LogFormat, level string) *logrus.Logger {
	if format == FormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	logrus.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		if level != "" {
			logrus.Warnf("unknown log level %q, using %s", level, lvl)
		}
	}
	logrus.SetLevel(lvl)

	return logrus.StandardLogger()
}
