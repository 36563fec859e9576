// Package screen is the application's drawing surface on top of a tft.Panel.
//
// A Screen serializes every operation with a mutex, so the refresh job and
// HTTP handlers can share one panel. Panels themselves do no locking.
package screen

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"tftpanel/internal/convert"
	"tftpanel/internal/tft"
)

// StatusBarHeight is the height of the strip StatusBar redraws.
const StatusBarHeight = 16

// Screen wraps a panel for concurrent use.
type Screen struct {
	mu   sync.Mutex
	p    tft.Panel
	info tft.Info
	font tinyfont.Fonter
}

// New wraps a ready panel.
func New(p tft.Panel) *Screen {
	return &Screen{p: p, info: p.Info(), font: &proggy.TinySZ8pt7b}
}

// Info returns the panel geometry.
func (s *Screen) Info() tft.Info {
	return s.info
}

// Pixel sets one pixel.
func (s *Screen) Pixel(x, y int, c uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.DrawPoint(c, x, y)
}

// Fill paints the whole panel with c.
func (s *Screen) Fill(c uint16) error {
	return s.FillRect(s.info.Bounds(), c)
}

// FillRect paints r, clipped to the panel, with c.
func (s *Screen) FillRect(r image.Rectangle, c uint16) error {
	r = r.Intersect(s.info.Bounds())
	if r.Empty() {
		return nil
	}
	buf := make([]uint16, r.Dx()*r.Dy())
	for i := range buf {
		buf[i] = c
	}
	return s.Blit(buf, r)
}

// Blit writes buf, row-major, into r. r must lie inside the panel.
func (s *Screen) Blit(buf []uint16, r image.Rectangle) error {
	if len(buf) < r.Dx()*r.Dy() {
		return fmt.Errorf("screen: buffer holds %d pixels, %v needs %d", len(buf), r, r.Dx()*r.Dy())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Render(buf, r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1)
}

// Image scales img to fit the panel, centred on black, and shows it.
func (s *Screen) Image(img image.Image) error {
	w, h := s.info.Width, s.info.Height
	return s.Blit(convert.Scale(img, w, h), s.info.Bounds())
}

// Text draws s with its baseline at y, one pixel write per lit pixel.
// Pixels falling off the panel are skipped.
func (s *Screen) Text(x, y int, str string, c color.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &pointDisplayer{p: s.p, w: s.info.Width, h: s.info.Height}
	tinyfont.WriteLine(d, s.font, int16(x), int16(y), str, c)
	return d.Display()
}

// StatusBar redraws the bottom strip with str in white on black. The strip
// is composed off-panel and sent in one Render.
func (s *Screen) StatusBar(str string) error {
	r := image.Rect(0, s.info.Height-StatusBarHeight, s.info.Width, s.info.Height)
	d := &bufferDisplayer{w: r.Dx(), h: r.Dy(), buf: make([]uint16, r.Dx()*r.Dy())}
	tinyfont.WriteLine(d, s.font, 2, int16(r.Dy()-4), str, color.RGBA{255, 255, 255, 255})
	return s.Blit(d.buf, r)
}

// pointDisplayer forwards tinyfont pixels straight to the panel and keeps
// the first error.
type pointDisplayer struct {
	p    tft.Panel
	w, h int
	err  error
}

var _ drivers.Displayer = (*pointDisplayer)(nil)

func (d *pointDisplayer) Size() (x, y int16) {
	return int16(d.w), int16(d.h)
}

func (d *pointDisplayer) SetPixel(x, y int16, c color.RGBA) {
	if d.err != nil || x < 0 || y < 0 || int(x) >= d.w || int(y) >= d.h {
		return
	}
	d.err = d.p.DrawPoint(convert.RGB565(c.R, c.G, c.B), int(x), int(y))
}

func (d *pointDisplayer) Display() error {
	return d.err
}

// bufferDisplayer collects tinyfont pixels in an RGB565 buffer.
type bufferDisplayer struct {
	w, h int
	buf  []uint16
}

var _ drivers.Displayer = (*bufferDisplayer)(nil)

func (d *bufferDisplayer) Size() (x, y int16) {
	return int16(d.w), int16(d.h)
}

func (d *bufferDisplayer) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || int(x) >= d.w || int(y) >= d.h {
		return
	}
	d.buf[int(y)*d.w+int(x)] = convert.RGB565(c.R, c.G, c.B)
}

func (d *bufferDisplayer) Display() error {
	return nil
}
