// Package pipeline produces a frame from the configured source and puts it
// on the screen.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"tftpanel/internal/battery"
	"tftpanel/internal/capture"
	"tftpanel/internal/config"
	"tftpanel/internal/convert"
	appLog "tftpanel/internal/log"
	"tftpanel/internal/screen"
)

var log = appLog.Named("pipeline")

var errorColor = color.RGBA{255, 64, 64, 255}

// Pipeline runs one refresh at a time; overlapping calls wait.
type Pipeline struct {
	mu sync.Mutex

	screen  *screen.Screen
	source  config.SourceConfig
	battery battery.Reader

	// capture is swapped in tests.
	capture func(context.Context, capture.Options) ([]byte, error)
}

// New builds a pipeline. bat may be nil to skip the status bar.
func New(s *screen.Screen, src config.SourceConfig, bat battery.Reader) *Pipeline {
	return &Pipeline{screen: s, source: src, battery: bat, capture: capture.Screenshot}
}

// Run renders the source once.
//
// When the source cannot produce a frame the panel is cleared and shows
// the failure as text. A failing battery read is logged and leaves the
// previous status bar in place.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	info := p.screen.Info()

	buf, err := p.frame(ctx, info.Width, info.Height)
	if err != nil {
		log.Error("source failed", err, "source", p.source.Kind)
		p.showError(err)
		return err
	}
	if err := p.screen.Blit(buf, info.Bounds()); err != nil {
		log.Error("refresh failed", err, "source", p.source.Kind)
		return fmt.Errorf("pipeline: show frame: %w", err)
	}

	if p.battery != nil {
		st, err := p.battery.Read(ctx)
		if err != nil {
			log.Warn("battery read failed", "err", err)
		} else if err := p.screen.StatusBar(st.String()); err != nil {
			log.Error("status bar failed", err)
			return fmt.Errorf("pipeline: status bar: %w", err)
		}
	}

	log.Info("refresh complete", "source", p.source.Kind, "duration", time.Since(start))
	return nil
}

// frame returns a w x h RGB565 buffer for the configured source.
func (p *Pipeline) frame(ctx context.Context, w, h int) ([]uint16, error) {
	switch p.source.Kind {
	case config.SourcePattern, "":
		return convert.TestPattern(w, h), nil

	case config.SourceImage:
		data, err := os.ReadFile(p.source.Image)
		if err != nil {
			return nil, fmt.Errorf("pipeline: read image: %w", err)
		}
		return decodeScaled(data, w, h)

	case config.SourceURL:
		data, err := p.capture(ctx, capture.Options{
			URL:          p.source.URL,
			Width:        w,
			Height:       h,
			WaitSelector: p.source.WaitSelector,
			Timeout:      time.Duration(p.source.TimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return decodeScaled(data, w, h)
	}
	return nil, fmt.Errorf("pipeline: unknown source kind %q", p.source.Kind)
}

func decodeScaled(data []byte, w, h int) ([]uint16, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode image: %w", err)
	}
	log.Debug("decoded frame", "format", format, "size", img.Bounds().Size())
	return convert.Scale(img, w, h), nil
}

// showError is best effort: the panel may be the thing that is broken.
func (p *Pipeline) showError(cause error) {
	if err := p.screen.Fill(0); err != nil {
		log.Warn("cannot clear panel for error text", "err", err)
		return
	}
	msg := cause.Error()
	if len(msg) > 38 {
		msg = msg[:38]
	}
	for i, line := range []string{"refresh failed:", msg} {
		if err := p.screen.Text(4, 20+12*i, line, errorColor); err != nil {
			log.Warn("cannot draw error text", "err", err)
			return
		}
	}
}
