package tft

import (
	"fmt"
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"

	"tftpanel/internal/convert"
)

// Drawer exposes a Panel as a periph display.Drawer.
type Drawer struct {
	p Panel
}

var _ display.Drawer = (*Drawer)(nil)

// NewDrawer wraps p.
func NewDrawer(p Panel) *Drawer {
	return &Drawer{p: p}
}

func (d *Drawer) String() string {
	if s, ok := d.p.(fmt.Stringer); ok {
		return s.String()
	}
	i := d.p.Info()
	return fmt.Sprintf("tft.Drawer{%dx%d}", i.Width, i.Height)
}

// Halt switches the backlight off when the panel's controller allows it.
func (d *Drawer) Halt() error {
	if c, ok := d.p.(interface{ Controller() Controller }); ok && c.Controller() != nil {
		return c.Controller().Backlight(false)
	}
	return nil
}

func (d *Drawer) ColorModel() color.Model {
	return convert.Model
}

func (d *Drawer) Bounds() image.Rectangle {
	return d.p.Info().Bounds()
}

// Draw copies src, starting at sp, into the dstRect part of the panel. The
// destination is clipped to the panel and sent in a single Render.
func (d *Drawer) Draw(dstRect image.Rectangle, src image.Image, sp image.Point) error {
	r := dstRect.Intersect(d.Bounds())
	if r.Empty() {
		return nil
	}
	// Source rectangle corresponding to the clipped destination.
	sr := r.Sub(dstRect.Min).Add(sp)
	buf := convert.Pixels(src, sr)
	return d.p.Render(buf, r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1)
}
