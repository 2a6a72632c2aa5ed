package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"INFO":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"Warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := New("info", "json").Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatal("expected JSON formatter")
	}
	if _, ok := New("info", "").Formatter.(*logrus.TextFormatter); !ok {
		t.Fatal("expected text formatter by default")
	}
}
