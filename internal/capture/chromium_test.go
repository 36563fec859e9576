package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOptionsDefaults(t *testing.T) {
	got, err := Options{URL: "http://127.0.0.1/"}.withDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != DefaultWidth || got.Height != DefaultHeight || got.Timeout != DefaultTimeoutSec*time.Second {
		t.Errorf("withDefaults() = %+v", got)
	}

	got, err = Options{URL: "x", Width: 320, Height: 120, Timeout: time.Second}.withDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 320 || got.Height != 120 || got.Timeout != time.Second {
		t.Errorf("explicit values overwritten: %+v", got)
	}
}

func TestScreenshotValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no url", Options{}},
		{"negative width", Options{URL: "http://127.0.0.1/", Width: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			png, err := Screenshot(context.Background(), tt.opts)
			if err == nil || png != nil {
				t.Errorf("Screenshot() = %d bytes, %v; want error", len(png), err)
			}
		})
	}

	if _, err := Screenshot(context.Background(), Options{}); !errors.Is(err, ErrNoURL) {
		t.Errorf("err = %v, want ErrNoURL", err)
	}
}
