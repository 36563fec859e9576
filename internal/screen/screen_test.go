package screen

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"tftpanel/internal/sim"
	"tftpanel/internal/tft"
)

func newScreen(t *testing.T) (*Screen, *sim.Panel) {
	t.Helper()
	p := sim.New(240, 240)
	panel, err := tft.Attach(p)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	p.ResetOps()
	return New(panel), p
}

func TestFillRectClips(t *testing.T) {
	s, p := newScreen(t)

	if err := s.FillRect(image.Rect(230, 230, 260, 260), 0x07E0); err != nil {
		t.Fatalf("FillRect: %v", err)
	}
	if got := p.At(239, 239); got != 0x07E0 {
		t.Errorf("corner = %#04x, want 0x07E0", got)
	}
	if got := p.At(229, 239); got != 0 {
		t.Errorf("pixel left of rect = %#04x", got)
	}
	ops := p.Ops()
	if len(ops) != 1 || ops[0].String() != "paint[230 239 230 239]" {
		t.Errorf("ops = %v", ops)
	}

	p.ResetOps()
	if err := s.FillRect(image.Rect(300, 300, 310, 310), 1); err != nil {
		t.Errorf("off-panel rect: %v", err)
	}
	if len(p.Ops()) != 0 {
		t.Errorf("off-panel rect reached the controller: %v", p.Ops())
	}
}

func TestPixelAndBounds(t *testing.T) {
	s, p := newScreen(t)
	if err := s.Pixel(5, 6, 0x001F); err != nil {
		t.Fatal(err)
	}
	if p.At(5, 6) != 0x001F {
		t.Errorf("At(5,6) = %#04x", p.At(5, 6))
	}
	if err := s.Pixel(240, 0, 1); !errors.Is(err, tft.ErrOutOfBounds) {
		t.Errorf("Pixel(240,0) = %v, want ErrOutOfBounds", err)
	}
}

func TestBlitShortBuffer(t *testing.T) {
	s, p := newScreen(t)
	if err := s.Blit(make([]uint16, 3), image.Rect(0, 0, 2, 2)); err == nil {
		t.Error("short buffer should fail")
	}
	if len(p.Ops()) != 0 {
		t.Errorf("ops = %v", p.Ops())
	}
}

func TestImageScalesToPanel(t *testing.T) {
	s, p := newScreen(t)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 0xFF, 0xFF
	}
	if err := s.Image(img); err != nil {
		t.Fatal(err)
	}
	for _, xy := range [][2]int{{0, 0}, {239, 239}, {120, 120}} {
		if got := p.At(xy[0], xy[1]); got != 0xF800 {
			t.Errorf("At%v = %#04x, want red", xy, got)
		}
	}
}

func TestTextDrawsPoints(t *testing.T) {
	s, p := newScreen(t)
	if err := s.Text(10, 20, "A", color.RGBA{255, 255, 255, 255}); err != nil {
		t.Fatal(err)
	}
	ops := p.Ops()
	if len(ops) == 0 || len(ops)%3 != 0 {
		t.Fatalf("expected caset/raset/ramwr triples, got %d ops", len(ops))
	}
	lit := 0
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			if p.At(x, y) == 0xFFFF {
				lit++
			}
		}
	}
	if lit != len(ops)/3 {
		t.Errorf("lit pixels = %d, draw points = %d", lit, len(ops)/3)
	}
}

func TestTextStopsOnFirstError(t *testing.T) {
	s, p := newScreen(t)
	busErr := errors.New("nak")
	p.FailOn("raset", busErr)

	err := s.Text(10, 20, "AB", color.RGBA{255, 255, 255, 255})
	if !errors.Is(err, busErr) {
		t.Fatalf("Text = %v, want %v", err, busErr)
	}
	if n := len(p.Ops()); n != 2 {
		t.Errorf("ops after failure = %v", p.Ops())
	}
}

func TestStatusBarSingleRender(t *testing.T) {
	s, p := newScreen(t)
	if err := s.StatusBar("BAT 87%"); err != nil {
		t.Fatal(err)
	}
	ops := p.Ops()
	if len(ops) != 1 || ops[0].String() != "paint[0 239 224 239]" {
		t.Fatalf("ops = %v", ops)
	}
	lit := 0
	for y := 224; y < 240; y++ {
		for x := 0; x < 240; x++ {
			if p.At(x, y) == 0xFFFF {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("status bar text not drawn")
	}
}

func TestConcurrentUse(t *testing.T) {
	s, p := newScreen(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Pixel(i, i, uint16(i+1)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	ops := p.Ops()
	if len(ops) != 24 {
		t.Fatalf("ops = %d, want 24", len(ops))
	}
	// Each draw point's three primitives must be adjacent.
	for i := 0; i < len(ops); i += 3 {
		x := ops[i].Args[0]
		if ops[i].Name != "caset" || ops[i+1].Name != "raset" || ops[i+1].Args[0] != x || ops[i+2].Name != "ramwr" {
			t.Errorf("interleaved ops at %d: %v", i, ops[i:i+3])
		}
	}
	for i := 0; i < 8; i++ {
		if got := p.At(i, i); got != uint16(i+1) {
			t.Errorf("At(%d,%d) = %d", i, i, got)
		}
	}
}
