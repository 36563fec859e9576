// Package battery reads the state of charge of a UPS/battery HAT so it can
// be shown in the panel's status bar.
package battery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// Status represents current battery status.
type Status struct {
	// Percent is the battery level in 0–100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, 0 if unknown.
	VoltageMv int `json:"voltage_mv"`
}

// String renders the status bar text, e.g. "BAT 87% 3.95V".
func (s Status) String() string {
	if s.VoltageMv <= 0 {
		return fmt.Sprintf("BAT %d%%", s.Percent)
	}
	return fmt.Sprintf("BAT %d%% %d.%02dV", s.Percent, s.VoltageMv/1000, s.VoltageMv%1000/10)
}

// Reader abstracts how battery information is obtained.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// PiSugar registers: voltage high/low byte (mV) and percentage.
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

// I2CReader talks to a PiSugar-style battery controller over I2C.
type I2CReader struct {
	busName string
	addr    uint16

	// open is swapped in tests.
	open func(name string) (i2c.BusCloser, error)
}

// NewI2CReader constructs an I2C-backed Reader. The bus is opened on every
// Read so a missing HAT never holds the bus; periph's host drivers must be
// initialized by the caller.
func NewI2CReader(busName string, addr uint16) *I2CReader {
	return &I2CReader{busName: busName, addr: addr, open: i2creg.Open}
}

// Read implements Reader.
func (r *I2CReader) Read(_ context.Context) (Status, error) {
	bus, err := r.open(r.busName)
	if err != nil {
		return Status{}, fmt.Errorf("battery: open i2c %q: %w", r.busName, err)
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}

	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, fmt.Errorf("battery: read reg %#02x: %w", reg, err)
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}

	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}

// MockReader is used for demo/development. It returns a pseudo-random
// percentage and no voltage.
type MockReader struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMockReader() *MockReader {
	return &MockReader{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *MockReader) Read(_ context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Random percentage between 20% and 100%.
	return Status{Percent: 20 + m.rnd.Intn(81)}, nil
}

// ErrUnavailable is returned by Fallback when neither reader works.
var ErrUnavailable = errors.New("battery: no reader available")

// Fallback tries primary and, if it fails, secondary.
type Fallback struct {
	Primary, Secondary Reader
}

func (f Fallback) Read(ctx context.Context) (Status, error) {
	if f.Primary != nil {
		if s, err := f.Primary.Read(ctx); err == nil {
			return s, nil
		}
	}
	if f.Secondary != nil {
		return f.Secondary.Read(ctx)
	}
	return Status{}, ErrUnavailable
}
