// Package sim emulates an ST7789 controller in memory so panels can be
// brought up and rendered without hardware.
package sim

import (
	"fmt"
	"image"
	"sync"

	"tftpanel/internal/convert"
	"tftpanel/internal/st7789"
)

// ST7789 frame memory is 240x320 regardless of the glass attached.
const (
	RAMWidth  = 240
	RAMHeight = 320
)

// Op is one primitive received by the emulator.
type Op struct {
	Name string
	Args []uint16
}

func (o Op) String() string {
	return fmt.Sprintf("%s%v", o.Name, o.Args)
}

// Panel is an emulated controller with a w x h glass showing the top-left
// of frame memory. It is safe for concurrent use so a viewer can snapshot
// while the application draws.
type Panel struct {
	mu sync.Mutex

	w, h int
	ram  []uint16

	col, row [2]uint16

	backlight bool
	sleeping  bool
	displayOn bool
	inverted  bool
	normal    bool
	colorMode st7789.ColorMode
	access    st7789.MemoryAccess

	ops  []Op
	fail map[string]error
}

// New returns a powered-on, sleeping controller with a w x h glass.
func New(w, h int) *Panel {
	return &Panel{
		w:        w,
		h:        h,
		ram:      make([]uint16, RAMWidth*RAMHeight),
		col:      [2]uint16{0, RAMWidth - 1},
		row:      [2]uint16{0, RAMHeight - 1},
		sleeping: true,
		fail:     map[string]error{},
	}
}

// FailOn makes every later primitive called name ("swreset", "caset",
// "ramwr", ...) fail with err. A nil err clears the failure.
func (p *Panel) FailOn(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.fail, name)
		return
	}
	p.fail[name] = err
}

// Ops returns a copy of the primitives received so far.
func (p *Panel) Ops() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Op(nil), p.ops...)
}

// ResetOps forgets the recorded primitives.
func (p *Panel) ResetOps() {
	p.mu.Lock()
	p.ops = nil
	p.mu.Unlock()
}

// record logs op and returns its injected failure. Callers hold p.mu.
func (p *Panel) record(name string, args ...uint16) error {
	p.ops = append(p.ops, Op{Name: name, Args: args})
	return p.fail[name]
}

func (p *Panel) Backlight(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var arg uint16
	if on {
		arg = 1
	}
	if err := p.record("backlight", arg); err != nil {
		return err
	}
	p.backlight = on
	return nil
}

func (p *Panel) HardwareReset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("hwreset")
	p.resetLocked()
}

func (p *Panel) SoftwareReset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("swreset"); err != nil {
		return err
	}
	p.resetLocked()
	return nil
}

// resetLocked restores register defaults. Frame memory keeps its contents,
// as on the real part.
func (p *Panel) resetLocked() {
	p.col = [2]uint16{0, RAMWidth - 1}
	p.row = [2]uint16{0, RAMHeight - 1}
	p.sleeping = true
	p.displayOn = false
	p.inverted = false
	p.normal = true
	p.colorMode = 0x66
	p.access = 0
}

func (p *Panel) SleepOut() error {
	return p.set("slpout", func() { p.sleeping = false })
}

func (p *Panel) SetColorMode(m st7789.ColorMode) error {
	return p.set("colmod", func() { p.colorMode = m }, uint16(m))
}

func (p *Panel) SetMemoryAccess(m st7789.MemoryAccess) error {
	return p.set("madctl", func() { p.access = m }, uint16(m))
}

func (p *Panel) InversionOn() error {
	return p.set("invon", func() { p.inverted = true })
}

func (p *Panel) NormalModeOn() error {
	return p.set("noron", func() { p.normal = true })
}

func (p *Panel) DisplayOn() error {
	return p.set("dispon", func() { p.displayOn = true })
}

func (p *Panel) SetColumns(x0, x1 uint16) error {
	return p.set("caset", func() { p.col = [2]uint16{x0, x1} }, x0, x1)
}

func (p *Panel) SetRows(y0, y1 uint16) error {
	return p.set("raset", func() { p.row = [2]uint16{y0, y1} }, y0, y1)
}

// WriteMemory fills the current window from its top-left corner, row by
// row, wrapping back to the corner when the window is full. Addresses
// outside frame memory are dropped.
func (p *Panel) WriteMemory(pixels []uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("ramwr", uint16(len(pixels))); err != nil {
		return err
	}
	p.writeLocked(pixels)
	return nil
}

// Paint is the combined window + memory write primitive.
func (p *Panel) Paint(pixels []uint16, x0, x1, y0, y1 uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if x1 < x0 || y1 < y0 {
		return fmt.Errorf("sim: paint: inverted window (%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}
	n := (int(x1) - int(x0) + 1) * (int(y1) - int(y0) + 1)
	if len(pixels) < n {
		return fmt.Errorf("sim: paint: buffer holds %d pixels, window needs %d", len(pixels), n)
	}
	if err := p.record("paint", x0, x1, y0, y1); err != nil {
		return err
	}
	p.col = [2]uint16{x0, x1}
	p.row = [2]uint16{y0, y1}
	p.writeLocked(pixels[:n])
	return nil
}

// Halt mirrors st7789.Device.Halt.
func (p *Panel) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("halt"); err != nil {
		return err
	}
	p.backlight = false
	p.displayOn = false
	p.sleeping = true
	return nil
}

func (p *Panel) set(name string, apply func(), args ...uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(name, args...); err != nil {
		return err
	}
	apply()
	return nil
}

func (p *Panel) writeLocked(pixels []uint16) {
	x0, x1 := int(p.col[0]), int(p.col[1])
	y0, y1 := int(p.row[0]), int(p.row[1])
	if x1 < x0 || y1 < y0 {
		return
	}
	x, y := x0, y0
	for _, c := range pixels {
		if x < RAMWidth && y < RAMHeight {
			p.ram[y*RAMWidth+x] = c
		}
		x++
		if x > x1 {
			x = x0
			y++
			if y > y1 {
				y = y0
			}
		}
	}
}

// State is a snapshot of the controller registers.
type State struct {
	Backlight    bool
	Sleeping     bool
	DisplayOn    bool
	Inverted     bool
	NormalMode   bool
	ColorMode    st7789.ColorMode
	MemoryAccess st7789.MemoryAccess
	Columns      [2]uint16
	Rows         [2]uint16
}

func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Backlight:    p.backlight,
		Sleeping:     p.sleeping,
		DisplayOn:    p.displayOn,
		Inverted:     p.inverted,
		NormalMode:   p.normal,
		ColorMode:    p.colorMode,
		MemoryAccess: p.access,
		Columns:      p.col,
		Rows:         p.row,
	}
}

// At returns the frame memory word at (x, y).
func (p *Panel) At(x, y int) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if x < 0 || y < 0 || x >= RAMWidth || y >= RAMHeight {
		return 0
	}
	return p.ram[y*RAMWidth+x]
}

// Snapshot renders what the glass shows: frame memory as addressed, or
// black while the display is off, asleep or unlit.
func (p *Panel) Snapshot() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.displayOn || p.sleeping || !p.backlight {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xFF
		}
		return img
	}
	for y := 0; y < p.h && y < RAMHeight; y++ {
		for x := 0; x < p.w && x < RAMWidth; x++ {
			c := convert.RGBA(p.ram[y*RAMWidth+x])
			off := img.PixOffset(x, y)
			img.Pix[off+0] = c.R
			img.Pix[off+1] = c.G
			img.Pix[off+2] = c.B
			img.Pix[off+3] = 0xFF
		}
	}
	return img
}
