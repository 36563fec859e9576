// Package tft adapts display controllers to fixed-geometry TFT panels.
//
// A Panel renders RGB565 pixel buffers and single pixels in logical panel
// coordinates. Each panel variant owns its geometry, its origin offset into
// controller RAM and the ordered command sequence that brings it up.
//
// Panels and their controllers carry shared hardware state (the controller's
// column/row window). They do no locking: callers serialize access.
package tft

import (
	"errors"
	"fmt"
	"image"

	"tftpanel/internal/st7789"
)

var (
	// ErrNotReady is returned by operations on a panel whose bring-up has
	// not completed.
	ErrNotReady = errors.New("tft: panel not initialized")
	// ErrOutOfBounds is returned for coordinates outside the panel or for an
	// inverted region.
	ErrOutOfBounds = errors.New("tft: coordinates out of bounds")
	// ErrOrientationUnsupported is returned by SetOrientation for panels
	// with a fixed orientation.
	ErrOrientationUnsupported = errors.New("tft: orientation change not supported")
)

// Orientation of the panel relative to its natural mounting.
type Orientation int

const (
	Upright Orientation = iota
	Right
	UpsideDown
	Left
)

func (o Orientation) String() string {
	switch o {
	case Upright:
		return "upright"
	case Right:
		return "right"
	case UpsideDown:
		return "upside-down"
	case Left:
		return "left"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// Info is the read-only geometry of a panel.
type Info struct {
	BitDepth    int
	Width       int
	Height      int
	Offset      image.Point // added to logical coordinates before addressing
	Orientation Orientation
}

// Bounds returns the logical panel rectangle.
func (i Info) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.Width, i.Height)
}

// Panel is the uniform rendering surface of a TFT panel.
type Panel interface {
	Info() Info
	// Render blits buf, row-major, into the inclusive region (x0,y0)-(x1,y1).
	Render(buf []uint16, x0, y0, x1, y1 int) error
	// DrawPoint writes one pixel.
	DrawPoint(c uint16, x, y int) error
}

// Orienter is implemented by panels that can change orientation at run
// time.
type Orienter interface {
	SetOrientation(o Orientation) error
}

// SetOrientation changes p's orientation when it supports that.
func SetOrientation(p Panel, o Orientation) error {
	if or, ok := p.(Orienter); ok {
		return or.SetOrientation(o)
	}
	return ErrOrientationUnsupported
}

// Controller is the set of controller primitives a panel is built on.
// *st7789.Device implements it.
type Controller interface {
	Backlight(on bool) error
	HardwareReset()
	SoftwareReset() error
	SleepOut() error
	SetColorMode(m st7789.ColorMode) error
	SetMemoryAccess(m st7789.MemoryAccess) error
	InversionOn() error
	NormalModeOn() error
	DisplayOn() error
	SetColumns(x0, x1 uint16) error
	SetRows(y0, y1 uint16) error
	WriteMemory(pixels []uint16) error
	Paint(pixels []uint16, x0, x1, y0, y1 uint16) error
}

// Ownership records whether a panel allocated its controller.
type Ownership int

const (
	// Owned controllers were created by the panel and are halted by Close.
	Owned Ownership = iota
	// Borrowed controllers belong to the caller; Close leaves them alone.
	Borrowed
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// Step identifies a mandatory bring-up command.
type Step int

const (
	StepSoftwareReset Step = iota + 1
	StepSleepOut
	StepColorMode
	StepMemoryAccess
	StepInversionOn
	StepNormalModeOn
	StepDisplayOn
)

var stepNames = map[Step]string{
	StepSoftwareReset: "software-reset",
	StepSleepOut:      "sleep-out",
	StepColorMode:     "color-mode",
	StepMemoryAccess:  "memory-access-control",
	StepInversionOn:   "inversion-on",
	StepNormalModeOn:  "normal-mode-on",
	StepDisplayOn:     "display-on",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// BringUpError reports the mandatory step that stopped a bring-up. A
// display that fails bring-up has no degraded mode; callers usually treat
// it as fatal.
type BringUpError struct {
	Step Step
	Err  error
}

func (e *BringUpError) Error() string {
	return fmt.Sprintf("tft: bring-up failed at %s: %v", e.Step, e.Err)
}

func (e *BringUpError) Unwrap() error { return e.Err }
