package tft

import (
	"errors"
	"fmt"
	"image"

	appLog "tftpanel/internal/log"
	"tftpanel/internal/st7789"
)

// Adafruit 1.3" 240x240 IPS panel (ST7789).
const (
	Adafruit130BitDepth = 16
	Adafruit130Width    = 240
	Adafruit130Height   = 240
	Adafruit130OffsetX  = 0
	Adafruit130OffsetY  = 0

	// The glass is mounted mirrored along X relative to controller RAM.
	adafruit130MemoryAccess = st7789.MirrorX
)

var adafruit130Log = appLog.Named("adafruit_130_tft")

// Adafruit130 is the descriptor of an Adafruit 1.3" TFT. The zero value is
// an uninitialized panel; one of Open, OpenInPlace or Attach makes it ready.
// After that its geometry never changes.
type Adafruit130 struct {
	info      Info
	ctl       Controller
	ownership Ownership
	ready     bool
}

var _ Panel = (*Adafruit130)(nil)

// Open creates the controller described by params and brings a new panel
// up on it. The panel owns the controller.
func Open(params st7789.Params) (*Adafruit130, error) {
	dev, err := st7789.New(params)
	if err != nil {
		return nil, err
	}
	t := &Adafruit130{}
	if err := bringUp(t, dev, Owned); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenInPlace initializes the caller's controller slot dev from params and
// brings the caller's descriptor dst up on it. Nothing is allocated; both
// stay owned by the caller.
func OpenInPlace(params st7789.Params, dst *Adafruit130, dev *st7789.Device) error {
	if dst == nil || dev == nil {
		return errors.New("tft: nil descriptor or device")
	}
	if dst.ready {
		return errors.New("tft: panel already initialized")
	}
	if err := st7789.Init(dev, params); err != nil {
		return err
	}
	return bringUp(dst, dev, Borrowed)
}

// Attach brings a new panel up on an existing controller, such as a
// simulator. The controller stays owned by the caller.
func Attach(ctl Controller) (*Adafruit130, error) {
	if ctl == nil {
		return nil, errors.New("tft: nil controller")
	}
	t := &Adafruit130{}
	if err := bringUp(t, ctl, Borrowed); err != nil {
		return nil, err
	}
	return t, nil
}

// bringUp runs the panel's command sequence on ctl and, only if every
// mandatory step succeeds, fills in dst.
func bringUp(dst *Adafruit130, ctl Controller, own Ownership) error {
	// Keep the backlight dark while RAM holds garbage.
	if err := ctl.Backlight(false); err != nil {
		adafruit130Log.Warn("backlight off failed", "err", err)
	}
	ctl.HardwareReset()

	steps := []struct {
		step Step
		run  func() error
	}{
		{StepSoftwareReset, ctl.SoftwareReset},
		{StepSleepOut, ctl.SleepOut},
		{StepColorMode, func() error { return ctl.SetColorMode(st7789.ColorMode16) }},
		{StepMemoryAccess, func() error { return ctl.SetMemoryAccess(adafruit130MemoryAccess) }},
		{StepInversionOn, ctl.InversionOn},
		{StepNormalModeOn, ctl.NormalModeOn},
		{StepDisplayOn, ctl.DisplayOn},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			adafruit130Log.Error("bring-up failed", err, "step", s.step)
			return &BringUpError{Step: s.step, Err: err}
		}
	}

	if err := ctl.Backlight(true); err != nil {
		adafruit130Log.Warn("backlight on failed", "err", err)
	}

	dst.info = Info{
		BitDepth:    Adafruit130BitDepth,
		Width:       Adafruit130Width,
		Height:      Adafruit130Height,
		Offset:      image.Pt(Adafruit130OffsetX, Adafruit130OffsetY),
		Orientation: Upright,
	}
	dst.ctl = ctl
	dst.ownership = own
	dst.ready = true
	adafruit130Log.Debug("panel ready", "ownership", own)
	return nil
}

// Info returns the panel geometry; it is the zero Info before bring-up.
func (t *Adafruit130) Info() Info {
	return t.info
}

// Ready reports whether bring-up completed.
func (t *Adafruit130) Ready() bool {
	return t.ready
}

// Controller returns the controller the panel was brought up on.
func (t *Adafruit130) Controller() Controller {
	return t.ctl
}

func (t *Adafruit130) Ownership() Ownership {
	return t.ownership
}

// Render blits buf into the inclusive region (x0,y0)-(x1,y1). The
// controller's error is returned as is.
func (t *Adafruit130) Render(buf []uint16, x0, y0, x1, y1 int) error {
	if !t.ready {
		return ErrNotReady
	}
	if !t.contains(x0, y0) || !t.contains(x1, y1) || x1 < x0 || y1 < y0 {
		return fmt.Errorf("%w: region (%d,%d)-(%d,%d)", ErrOutOfBounds, x0, y0, x1, y1)
	}
	ox, oy := t.info.Offset.X, t.info.Offset.Y
	return t.ctl.Paint(buf,
		uint16(x0+ox), uint16(x1+ox),
		uint16(y0+oy), uint16(y1+oy),
	)
}

// DrawPoint writes c at (x, y). The controller addresses RAM through a
// column/row window, so every pixel first narrows the window to 1x1. The
// first failing command stops the sequence and its error is returned as is.
func (t *Adafruit130) DrawPoint(c uint16, x, y int) error {
	if !t.ready {
		return ErrNotReady
	}
	if !t.contains(x, y) {
		return fmt.Errorf("%w: point (%d,%d)", ErrOutOfBounds, x, y)
	}
	xo := uint16(x + t.info.Offset.X)
	yo := uint16(y + t.info.Offset.Y)

	if err := t.ctl.SetColumns(xo, xo); err != nil {
		adafruit130Log.Error("draw point failed on caset", err, "x", x, "y", y)
		return err
	}
	if err := t.ctl.SetRows(yo, yo); err != nil {
		adafruit130Log.Error("draw point failed on raset", err, "x", x, "y", y)
		return err
	}
	if err := t.ctl.WriteMemory([]uint16{c}); err != nil {
		adafruit130Log.Error("draw point failed on ramwr", err, "x", x, "y", y)
		return err
	}
	return nil
}

// Close halts the controller if the panel created it. Borrowed controllers
// are left running.
func (t *Adafruit130) Close() error {
	if !t.ready || t.ownership != Owned {
		return nil
	}
	if h, ok := t.ctl.(interface{ Halt() error }); ok {
		return h.Halt()
	}
	return nil
}

func (t *Adafruit130) String() string {
	return fmt.Sprintf("adafruit_130_tft{%dx%d}", t.info.Width, t.info.Height)
}

func (t *Adafruit130) contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < t.info.Width && y < t.info.Height
}
