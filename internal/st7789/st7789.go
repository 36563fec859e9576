// Package st7789 drives a Sitronix ST7789 TFT controller over 4-wire SPI
// using periph.io. It exposes the controller's primitive commands one by
// one; panel-specific bring-up order and geometry live in package tft.
package st7789

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Command bytes from the ST7789 datasheet.
const (
	SWRESET = 0x01
	SLPIN   = 0x10
	SLPOUT  = 0x11
	NORON   = 0x13
	INVOFF  = 0x20
	INVON   = 0x21
	DISPOFF = 0x28
	DISPON  = 0x29
	CASET   = 0x2A
	RASET   = 0x2B
	RAMWR   = 0x2C
	MADCTL  = 0x36
	COLMOD  = 0x3A
)

// ColorMode is the COLMOD interface pixel format argument.
type ColorMode byte

// ColorMode16 selects 65K colors at 16 bits per pixel (RGB565).
const ColorMode16 ColorMode = 0x55

// MemoryAccess is the MADCTL argument: mirroring, axis exchange, refresh
// direction and RGB/BGR order.
type MemoryAccess byte

const (
	MirrorY    MemoryAccess = 0x80
	MirrorX    MemoryAccess = 0x40
	ExchangeXY MemoryAccess = 0x20
	RefreshBTT MemoryAccess = 0x10
	BGR        MemoryAccess = 0x08
	RefreshRTL MemoryAccess = 0x04
)

// DefaultFrequency is used when Params.Frequency is zero.
const DefaultFrequency = 40 * physic.MegaHertz

// defaultMaxTx bounds a single SPI transfer when the conn reports no limit.
const defaultMaxTx = 4096

// Params describes how the controller is wired.
type Params struct {
	// Port is the SPI port the controller sits on.
	Port spi.Port
	// DC selects command (low) or data (high). Required.
	DC gpio.PinOut
	// RST is the optional hardware reset line (active low).
	RST gpio.PinOut
	// BL is the optional backlight enable line (active high).
	BL gpio.PinOut

	Frequency physic.Frequency
	Mode      spi.Mode
}

// Device is one ST7789 controller. The column/row window it last set is
// hardware state shared by every caller; a Device must be used by a single
// goroutine at a time.
type Device struct {
	c   spi.Conn
	dc  gpio.PinOut
	rst gpio.PinOut
	bl  gpio.PinOut

	maxTx int
	sleep func(time.Duration)

	// Last window set with CASET/RASET.
	col [2]uint16
	row [2]uint16

	buf []byte
}

// New allocates a Device and connects it to params.Port.
func New(params Params) (*Device, error) {
	d := &Device{}
	if err := Init(d, params); err != nil {
		return nil, err
	}
	return d, nil
}

// Init connects a caller-allocated Device in place. Any previous state of d
// is discarded.
func Init(d *Device, params Params) error {
	if d == nil {
		return errors.New("st7789: nil device")
	}
	if params.Port == nil {
		return errors.New("st7789: SPI port is required")
	}
	if params.DC == nil || params.DC == gpio.INVALID {
		return errors.New("st7789: DC pin is required")
	}
	f := params.Frequency
	if f == 0 {
		f = DefaultFrequency
	}

	c, err := params.Port.Connect(f, params.Mode, 8)
	if err != nil {
		return fmt.Errorf("st7789: connect: %w", err)
	}
	attach(d, c, params)
	return nil
}

// attach wires an already connected conn into d.
func attach(d *Device, c spi.Conn, params Params) {
	*d = Device{
		c:     c,
		dc:    params.DC,
		rst:   params.RST,
		bl:    params.BL,
		maxTx: defaultMaxTx,
		sleep: time.Sleep,
	}
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		d.maxTx = l.MaxTxSize()
	}
	// Pixel payloads are split into even-sized chunks so no pixel straddles
	// two transfers.
	d.maxTx &^= 1
	if d.maxTx < 2 {
		d.maxTx = 2
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("st7789.Device{%s}", d.c)
}

// Window returns the column and row ranges most recently set.
func (d *Device) Window() (x0, x1, y0, y1 uint16) {
	return d.col[0], d.col[1], d.row[0], d.row[1]
}

// Backlight switches the backlight line. It is a no-op without a BL pin.
func (d *Device) Backlight(on bool) error {
	if d.bl == nil {
		return nil
	}
	l := gpio.Low
	if on {
		l = gpio.High
	}
	if err := d.bl.Out(l); err != nil {
		return fmt.Errorf("st7789: backlight: %w", err)
	}
	return nil
}

// HardwareReset pulses the RST line. It reports nothing: a missing or
// failing reset line leaves the software reset to do the work.
func (d *Device) HardwareReset() {
	if d.rst == nil {
		return
	}
	if d.rst.Out(gpio.High) != nil {
		return
	}
	d.sleep(10 * time.Millisecond)
	if d.rst.Out(gpio.Low) != nil {
		return
	}
	d.sleep(10 * time.Millisecond)
	if d.rst.Out(gpio.High) != nil {
		return
	}
	d.sleep(120 * time.Millisecond)
}

// SoftwareReset issues SWRESET and waits for the controller to reload its
// defaults.
func (d *Device) SoftwareReset() error {
	if err := d.command("swreset", SWRESET); err != nil {
		return err
	}
	d.sleep(150 * time.Millisecond)
	return nil
}

// SleepOut leaves sleep mode and waits for the supply to settle.
func (d *Device) SleepOut() error {
	if err := d.command("slpout", SLPOUT); err != nil {
		return err
	}
	d.sleep(10 * time.Millisecond)
	return nil
}

func (d *Device) SetColorMode(m ColorMode) error {
	return d.command("colmod", COLMOD, byte(m))
}

func (d *Device) SetMemoryAccess(m MemoryAccess) error {
	return d.command("madctl", MADCTL, byte(m))
}

func (d *Device) InversionOn() error {
	return d.command("invon", INVON)
}

func (d *Device) NormalModeOn() error {
	if err := d.command("noron", NORON); err != nil {
		return err
	}
	d.sleep(10 * time.Millisecond)
	return nil
}

func (d *Device) DisplayOn() error {
	if err := d.command("dispon", DISPON); err != nil {
		return err
	}
	d.sleep(10 * time.Millisecond)
	return nil
}

// SetColumns sets the column address window to [x0, x1].
func (d *Device) SetColumns(x0, x1 uint16) error {
	if err := d.command("caset", CASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	d.col = [2]uint16{x0, x1}
	return nil
}

// SetRows sets the row address window to [y0, y1].
func (d *Device) SetRows(y0, y1 uint16) error {
	if err := d.command("raset", RASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	d.row = [2]uint16{y0, y1}
	return nil
}

// WriteMemory issues RAMWR and streams pixels, big-endian, into the current
// window.
func (d *Device) WriteMemory(pixels []uint16) error {
	if err := d.command("ramwr", RAMWR); err != nil {
		return err
	}
	if err := d.streamPixels(pixels); err != nil {
		return fmt.Errorf("st7789: ramwr: %w", err)
	}
	return nil
}

// Paint sets the window to [x0, x1] x [y0, y1] and writes exactly the
// pixels that fill it.
func (d *Device) Paint(pixels []uint16, x0, x1, y0, y1 uint16) error {
	if x1 < x0 || y1 < y0 {
		return fmt.Errorf("st7789: paint: inverted window (%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}
	n := (int(x1) - int(x0) + 1) * (int(y1) - int(y0) + 1)
	if len(pixels) < n {
		return fmt.Errorf("st7789: paint: buffer holds %d pixels, window needs %d", len(pixels), n)
	}
	if err := d.SetColumns(x0, x1); err != nil {
		return err
	}
	if err := d.SetRows(y0, y1); err != nil {
		return err
	}
	return d.WriteMemory(pixels[:n])
}

// Halt turns the backlight off, blanks the display and enters sleep mode.
func (d *Device) Halt() error {
	var errs []error
	if err := d.Backlight(false); err != nil {
		errs = append(errs, err)
	}
	if err := d.command("dispoff", DISPOFF); err != nil {
		errs = append(errs, err)
	}
	if err := d.command("slpin", SLPIN); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// command sends cmd with DC low, then args (if any) with DC high.
func (d *Device) command(name string, cmd byte, args ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("st7789: %s: dc: %w", name, err)
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("st7789: %s: %w", name, err)
	}
	if len(args) == 0 {
		return nil
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("st7789: %s: dc: %w", name, err)
	}
	if err := d.c.Tx(args, nil); err != nil {
		return fmt.Errorf("st7789: %s: %w", name, err)
	}
	return nil
}

func (d *Device) streamPixels(pixels []uint16) error {
	if len(pixels) == 0 {
		return nil
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	if cap(d.buf) < d.maxTx {
		d.buf = make([]byte, d.maxTx)
	}
	per := d.maxTx / 2
	for len(pixels) > 0 {
		n := min(per, len(pixels))
		b := d.buf[:2*n]
		for i, p := range pixels[:n] {
			b[2*i] = byte(p >> 8)
			b[2*i+1] = byte(p)
		}
		if err := d.c.Tx(b, nil); err != nil {
			return err
		}
		pixels = pixels[n:]
	}
	return nil
}
