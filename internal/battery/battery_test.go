package battery

import (
	"context"
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

type fakeBus struct {
	regs   map[byte]byte
	addr   uint16
	closed bool
	err    error
}

func (b *fakeBus) String() string                    { return "fakei2c" }
func (b *fakeBus) SetSpeed(f physic.Frequency) error { return nil }
func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if b.err != nil {
		return b.err
	}
	b.addr = addr
	r[0] = b.regs[w[0]]
	return nil
}

func TestI2CReader(t *testing.T) {
	bus := &fakeBus{regs: map[byte]byte{regVoltageHigh: 0x0F, regVoltageLow: 0x6E, regPercent: 87}}
	r := NewI2CReader("", 0x57)
	r.open = func(string) (i2c.BusCloser, error) { return bus, nil }

	st, err := r.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if st != (Status{Percent: 87, VoltageMv: 3950}) {
		t.Errorf("Read() = %+v", st)
	}
	if bus.addr != 0x57 || !bus.closed {
		t.Errorf("addr=%#x closed=%v", bus.addr, bus.closed)
	}
}

func TestI2CReaderClampsPercent(t *testing.T) {
	bus := &fakeBus{regs: map[byte]byte{regPercent: 140}}
	r := NewI2CReader("", 0x57)
	r.open = func(string) (i2c.BusCloser, error) { return bus, nil }

	st, err := r.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Percent != 100 {
		t.Errorf("Percent = %d, want 100", st.Percent)
	}
}

func TestI2CReaderErrors(t *testing.T) {
	r := NewI2CReader("I2C9", 0x57)
	r.open = func(string) (i2c.BusCloser, error) { return nil, errors.New("no such bus") }
	if _, err := r.Read(context.Background()); err == nil {
		t.Error("open failure should propagate")
	}

	bus := &fakeBus{err: errors.New("nak")}
	r.open = func(string) (i2c.BusCloser, error) { return bus, nil }
	if _, err := r.Read(context.Background()); err == nil {
		t.Error("register read failure should propagate")
	}
	if !bus.closed {
		t.Error("bus must be closed after a failed read")
	}
}

func TestMockReaderRange(t *testing.T) {
	m := NewMockReader()
	for i := 0; i < 50; i++ {
		st, err := m.Read(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if st.Percent < 20 || st.Percent > 100 {
			t.Fatalf("Percent = %d out of range", st.Percent)
		}
	}
}

type staticReader struct {
	st  Status
	err error
}

func (s staticReader) Read(context.Context) (Status, error) { return s.st, s.err }

func TestFallback(t *testing.T) {
	ok := staticReader{st: Status{Percent: 50}}
	bad := staticReader{err: errors.New("down")}

	tests := []struct {
		name    string
		f       Fallback
		want    int
		wantErr bool
	}{
		{"primary", Fallback{Primary: ok, Secondary: bad}, 50, false},
		{"secondary", Fallback{Primary: bad, Secondary: ok}, 50, false},
		{"none", Fallback{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := tt.f.Read(context.Background())
			if (err != nil) != tt.wantErr || st.Percent != tt.want {
				t.Errorf("Read() = %+v, %v", st, err)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		st   Status
		want string
	}{
		{Status{Percent: 87, VoltageMv: 3950}, "BAT 87% 3.95V"},
		{Status{Percent: 100, VoltageMv: 4005}, "BAT 100% 4.00V"},
		{Status{Percent: 42}, "BAT 42%"},
	}
	for _, tt := range tests {
		if got := tt.st.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
