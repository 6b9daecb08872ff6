package icled

import (
	"bytes"
	"errors"
	"testing"
)

// fakeEngine records every arm/disarm in order and keeps a copy of each
// armed buffer, so tests can decode what would have gone on the wire.
type fakeEngine struct {
	calls   []string
	armed   [][]uint16
	armErr  error
	stopErr error
}

func (e *fakeEngine) Arm(slots []uint16) error {
	e.calls = append(e.calls, "arm")
	if e.armErr != nil {
		return e.armErr
	}
	c := make([]uint16, len(slots))
	copy(c, slots)
	e.armed = append(e.armed, c)
	return nil
}

func (e *fakeEngine) Disarm() error {
	e.calls = append(e.calls, "disarm")
	return e.stopErr
}

func (e *fakeEngine) lastArmed(tb testing.TB) []uint16 {
	if len(e.armed) == 0 {
		tb.Fatalf("nothing armed")
	}
	return e.armed[len(e.armed)-1]
}

// decodeLed reads back LED i's 24-slot window: Pwm1->1, Pwm0->0, MSB
// first, channels in wire order G,R,B.
func decodeLed(tb testing.TB, slots []uint16, i int) (r, g, b uint8) {
	var ch [3]uint8
	for c := 0; c < 3; c++ {
		for bit := 0; bit < 8; bit++ {
			switch slots[i*BitsPerLed+c*8+bit] {
			case Pwm1:
				ch[c] |= 1 << uint(7-bit)
			case Pwm0:
			default:
				tb.Fatalf("LED %d chan %d bit %d: illegal slot value %d", i, c, bit, slots[i*BitsPerLed+c*8+bit])
			}
		}
	}
	return ch[1], ch[0], ch[2]
}

func newTestMatrix(t *testing.T) (*Matrix, *fakeEngine) {
	e := &fakeEngine{}
	m := New(e)
	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return m, e
}

func TestInitRunsAllBlack(t *testing.T) {
	m, e := newTestMatrix(t)
	if m.state != stateRunning {
		t.Errorf("state after Init got: %v, want %v", m.state, stateRunning)
	}
	if len(e.armed) != 1 {
		t.Fatalf("wrong arm count, got: %d, want: 1", len(e.armed))
	}
	slots := e.lastArmed(t)
	if len(slots) != BufferLen {
		t.Fatalf("wrong buffer len, got: %d, want: %d", len(slots), BufferLen)
	}
	for i := 0; i < LedCount*BitsPerLed; i++ {
		if slots[i] != Pwm0 {
			t.Fatalf("data slot %d got: %d, want all-zero bit %d", i, slots[i], Pwm0)
		}
	}
	for i := LedCount * BitsPerLed; i < BufferLen; i++ {
		if slots[i] != PwmIdle {
			t.Fatalf("reset slot %d got: %d, want %d", i, slots[i], PwmIdle)
		}
	}
}

func TestSetPixelShowDecodes(t *testing.T) {
	m, e := newTestMatrix(t)
	m.SetPixel(0, 255, 0, 0)
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	slots := e.lastArmed(t)

	// g=0: slots 0-7 all zero bits; r=255: slots 8-15 all one bits.
	for i := 0; i < 8; i++ {
		if slots[i] != Pwm0 {
			t.Errorf("G slot %d got: %d, want %d", i, slots[i], Pwm0)
		}
		if slots[8+i] != Pwm1 {
			t.Errorf("R slot %d got: %d, want %d", 8+i, slots[8+i], Pwm1)
		}
	}
	r, g, b := decodeLed(t, slots, 0)
	if r != 255 || g != 0 || b != 0 {
		t.Errorf("LED 0 got: (%d,%d,%d), want (255,0,0)", r, g, b)
	}
	for i := 1; i < LedCount; i++ {
		if r, g, b := decodeLed(t, slots, i); r != 0 || g != 0 || b != 0 {
			t.Errorf("LED %d got: (%d,%d,%d), want black", i, r, g, b)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		i       int
		r, g, b uint8
	}{
		{0, 1, 2, 3},
		{1, 0xaa, 0x55, 0xff},
		{52, 200, 100, 50},
		{LedCount - 1, 255, 255, 255},
	}

	m, e := newTestMatrix(t)
	for _, test := range tests {
		m.SetPixel(test.i, test.r, test.g, test.b)
	}
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	slots := e.lastArmed(t)
	for _, test := range tests {
		r, g, b := decodeLed(t, slots, test.i)
		if r != test.r || g != test.g || b != test.b {
			t.Errorf("LED %d got: (%d,%d,%d), want (%d,%d,%d)", test.i, r, g, b, test.r, test.g, test.b)
		}
	}
}

func TestSetPixelOutOfRange(t *testing.T) {
	m, _ := newTestMatrix(t)
	m.SetPixel(3, 1, 2, 3)
	before := make([]byte, len(m.pixels))
	copy(before, m.pixels)

	for _, i := range []int{-1, LedCount, LedCount + 1, 1 << 20} {
		m.SetPixel(i, 255, 255, 255)
		if !bytes.Equal(m.pixels, before) {
			t.Errorf("store mutated by SetPixel(%d)", i)
		}
	}
}

func TestShowIdempotent(t *testing.T) {
	m, e := newTestMatrix(t)
	m.SetPixel(7, 12, 34, 56)
	if err := m.Show(); err != nil {
		t.Fatalf("first Show failed: %v", err)
	}
	first := e.lastArmed(t)
	if err := m.Show(); err != nil {
		t.Fatalf("second Show failed: %v", err)
	}
	second := e.lastArmed(t)
	if len(first) != len(second) {
		t.Fatalf("buffer lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("buffers differ at slot %d: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestResetSlotsAlwaysIdle(t *testing.T) {
	m, e := newTestMatrix(t)
	for i := 0; i < LedCount; i++ {
		m.SetPixel(i, 255, 255, 255)
	}
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	slots := e.lastArmed(t)
	for i := LedCount * BitsPerLed; i < BufferLen; i++ {
		if slots[i] != PwmIdle {
			t.Fatalf("reset slot %d got: %d, want %d", i, slots[i], PwmIdle)
		}
	}
}

func TestBufferLenConstant(t *testing.T) {
	m, e := newTestMatrix(t)
	m.SetPixel(0, 1, 1, 1)
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	m.SetPixel(104, 9, 9, 9)
	if err := m.Show(); err != nil {
		t.Fatalf("second Show failed: %v", err)
	}
	if err := m.Init(); err != nil {
		t.Fatalf("re-Init failed: %v", err)
	}
	for n, slots := range e.armed {
		if len(slots) != BufferLen {
			t.Errorf("arm %d: wrong buffer len, got: %d, want: %d", n, len(slots), BufferLen)
		}
	}
	if len(m.slots) != BufferLen {
		t.Errorf("slot buffer resized to %d, want %d", len(m.slots), BufferLen)
	}
}

func TestClearAllBlack(t *testing.T) {
	m, e := newTestMatrix(t)
	for i := 0; i < LedCount; i++ {
		m.SetPixel(i, uint8(i), 255-uint8(i), 128)
	}
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	slots := e.lastArmed(t)
	for i := 0; i < LedCount; i++ {
		if r, g, b := decodeLed(t, slots, i); r != 0 || g != 0 || b != 0 {
			t.Errorf("LED %d got: (%d,%d,%d), want black", i, r, g, b)
		}
	}
}

func TestShowStopsBeforeRestart(t *testing.T) {
	m, e := newTestMatrix(t)
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	want := []string{"arm", "disarm", "arm"} // Init, then Show's stop/restart
	if len(e.calls) != len(want) {
		t.Fatalf("wrong call sequence, got: %v, want: %v", e.calls, want)
	}
	for i := range want {
		if e.calls[i] != want[i] {
			t.Fatalf("wrong call sequence, got: %v, want: %v", e.calls, want)
		}
	}
	// No SetPixel happened, so the re-armed frame is still all-black.
	slots := e.lastArmed(t)
	for i := 0; i < LedCount*BitsPerLed; i++ {
		if slots[i] != Pwm0 {
			t.Fatalf("data slot %d got: %d, want %d", i, slots[i], Pwm0)
		}
	}
}

func TestShowBeforeInit(t *testing.T) {
	m := New(&fakeEngine{})
	if err := m.Show(); err == nil {
		t.Errorf("Show before Init didn't fail")
	}
}

func TestEngineFailureIsFatal(t *testing.T) {
	armErr := errors.New("arm blew up")
	e := &fakeEngine{}
	m := New(e)
	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	e.armErr = armErr
	if err := m.Show(); err == nil {
		t.Fatalf("Show with failing engine didn't fail")
	}
	// The session is gone; a further Show must be rejected, not retried.
	e.armErr = nil
	if err := m.Show(); err == nil {
		t.Errorf("Show after fatal arm failure didn't fail")
	}
	if err := m.Init(); err != nil {
		t.Errorf("re-Init after fatal failure failed: %v", err)
	}
	if err := m.Show(); err != nil {
		t.Errorf("Show after re-Init failed: %v", err)
	}
}

func BenchmarkShow(b *testing.B) {
	m := New(&fakeEngine{})
	if err := m.Init(); err != nil {
		b.Fatalf("Init failed: %v", err)
	}
	for i := 0; i < b.N; i++ {
		m.SetPixel(i%LedCount, uint8(i), uint8(i>>8), 0)
		m.Show()
	}
}
