package sim

import (
	"errors"
	"image/color"
	"testing"

	"tftpanel/internal/st7789"
	"tftpanel/internal/tft"
)

func TestBringUpOnSimulator(t *testing.T) {
	p := New(240, 240)
	panel, err := tft.Attach(p)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	st := p.State()
	want := State{
		Backlight:    true,
		DisplayOn:    true,
		Inverted:     true,
		NormalMode:   true,
		ColorMode:    st7789.ColorMode16,
		MemoryAccess: st7789.MirrorX,
		Columns:      [2]uint16{0, RAMWidth - 1},
		Rows:         [2]uint16{0, RAMHeight - 1},
	}
	if st != want {
		t.Errorf("State() = %+v, want %+v", st, want)
	}
	if panel.Info().Width != 240 || panel.Info().BitDepth != 16 {
		t.Errorf("Info() = %+v", panel.Info())
	}
}

func TestDrawPointLandsInRAM(t *testing.T) {
	p := New(240, 240)
	panel, err := tft.Attach(p)
	if err != nil {
		t.Fatal(err)
	}
	p.ResetOps()

	if err := panel.DrawPoint(0xF800, 10, 20); err != nil {
		t.Fatal(err)
	}
	if got := p.At(10, 20); got != 0xF800 {
		t.Errorf("RAM(10,20) = %#04x, want 0xF800", got)
	}
	ops := p.Ops()
	if len(ops) != 3 || ops[0].String() != "caset[10 10]" || ops[1].String() != "raset[20 20]" || ops[2].String() != "ramwr[1]" {
		t.Errorf("ops = %v", ops)
	}
}

func TestRenderFillsWindowRowMajor(t *testing.T) {
	p := New(240, 240)
	panel, err := tft.Attach(p)
	if err != nil {
		t.Fatal(err)
	}

	if err := panel.Render([]uint16{1, 2, 3, 4, 5, 6}, 100, 50, 102, 51); err != nil {
		t.Fatal(err)
	}
	want := map[[2]int]uint16{
		{100, 50}: 1, {101, 50}: 2, {102, 50}: 3,
		{100, 51}: 4, {101, 51}: 5, {102, 51}: 6,
	}
	for xy, c := range want {
		if got := p.At(xy[0], xy[1]); got != c {
			t.Errorf("RAM%v = %d, want %d", xy, got, c)
		}
	}
	if got := p.At(103, 50); got != 0 {
		t.Errorf("pixel outside window written: %d", got)
	}
}

func TestWriteMemoryWrapsInsideWindow(t *testing.T) {
	p := New(240, 240)
	if err := p.SetColumns(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.SetRows(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteMemory([]uint16{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if p.At(0, 0) != 3 || p.At(1, 0) != 2 {
		t.Errorf("wrap: got %d,%d want 3,2", p.At(0, 0), p.At(1, 0))
	}
}

func TestFailOn(t *testing.T) {
	p := New(240, 240)
	busErr := errors.New("nak")
	p.FailOn("slpout", busErr)

	_, err := tft.Attach(p)
	var bue *tft.BringUpError
	if !errors.As(err, &bue) || bue.Step != tft.StepSleepOut {
		t.Fatalf("Attach err = %v, want sleep-out failure", err)
	}
	if last := p.Ops()[len(p.Ops())-1]; last.Name != "slpout" {
		t.Errorf("ops continued after failure: %v", p.Ops())
	}

	p.FailOn("slpout", nil)
	if _, err := tft.Attach(p); err != nil {
		t.Errorf("cleared failure still fails: %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	p := New(4, 4)
	if err := p.Paint([]uint16{0xF800}, 1, 1, 2, 2); err != nil {
		t.Fatal(err)
	}
	if got := p.Snapshot().RGBAAt(1, 2); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("dark panel shows %v", got)
	}

	if _, err := tft.Attach(p); err != nil {
		t.Fatal(err)
	}
	if got := p.Snapshot().RGBAAt(1, 2); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("lit panel shows %v, want red", got)
	}

	if err := p.Halt(); err != nil {
		t.Fatal(err)
	}
	if got := p.Snapshot().RGBAAt(1, 2); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("halted panel shows %v", got)
	}
}

func TestPaintValidation(t *testing.T) {
	p := New(240, 240)
	if err := p.Paint([]uint16{1}, 0, 1, 0, 0); err == nil {
		t.Error("short buffer should fail")
	}
	if err := p.Paint([]uint16{1}, 1, 0, 0, 0); err == nil {
		t.Error("inverted window should fail")
	}
	if len(p.Ops()) != 0 {
		t.Errorf("rejected paints recorded: %v", p.Ops())
	}
}
