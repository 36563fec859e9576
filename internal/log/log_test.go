package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", "k", 1)
	Error("shown error", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("lines below WARN were written:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] shown warn k=1") {
		t.Errorf("missing warn line:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] shown error err=boom") {
		t.Errorf("missing error line:\n%s", out)
	}
}

func TestNamedLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	Named("adafruit_130_tft").Error("draw point failed on caset", errors.New("bus"), "x", 3)

	want := "[ERROR] [adafruit_130_tft] draw point failed on caset err=bus x=3"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("got %q, want it to contain %q", buf.String(), want)
	}
}

func TestFormatKVsIgnoresOddTail(t *testing.T) {
	if got := formatKVs("a", 1, "b"); got != " a=1" {
		t.Errorf("formatKVs = %q, want %q", got, " a=1")
	}
	if got := formatKVs(7, "x"); got != "" {
		t.Errorf("non-string key should be skipped, got %q", got)
	}
}
