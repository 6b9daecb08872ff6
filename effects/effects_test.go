package effects

import (
	"math/rand"
	"testing"
	"time"

	icled "github.com/Jon-Bright/icledctl/icled"
)

// fakeEngine keeps the last armed buffer so tests can decode the frame
// an effect produced.
type fakeEngine struct {
	last []uint16
}

func (e *fakeEngine) Arm(slots []uint16) error {
	e.last = make([]uint16, len(slots))
	copy(e.last, slots)
	return nil
}

func (e *fakeEngine) Disarm() error {
	return nil
}

func decodeLed(tb testing.TB, slots []uint16, i int) (r, g, b uint8) {
	var ch [3]uint8
	for c := 0; c < 3; c++ {
		for bit := 0; bit < 8; bit++ {
			switch slots[i*icled.BitsPerLed+c*8+bit] {
			case icled.Pwm1:
				ch[c] |= 1 << uint(7-bit)
			case icled.Pwm0:
			default:
				tb.Fatalf("LED %d chan %d bit %d: illegal slot value %d", i, c, bit, slots[i*icled.BitsPerLed+c*8+bit])
			}
		}
	}
	return ch[1], ch[0], ch[2]
}

func newTestMatrix(t *testing.T) (*icled.Matrix, *fakeEngine) {
	e := &fakeEngine{}
	m := icled.New(e)
	if err := m.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return m, e
}

func frame(t *testing.T, m *icled.Matrix, e *fakeEngine, ef Effect, now time.Time) []uint16 {
	d := ef.NextStep(m, now)
	if d <= 0 {
		t.Fatalf("%s.NextStep returned %v, want a positive frame delay", ef.Name(), d)
	}
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	return e.last
}

func TestSweepFirstFrame(t *testing.T) {
	m, e := newTestMatrix(t)
	s := NewSweep(102, 80*time.Millisecond)
	now := time.Now()
	s.Start(m, now)
	slots := frame(t, m, e, s, now)

	head := uint8(102)
	wantTopRow := map[int]uint8{
		0: head,
		1: uint8(int(head) * 100 / 255),
		2: uint8(int(head) * 40 / 255),
	}
	for c := 0; c < icled.MatrixCols; c++ {
		r, g, b := decodeLed(t, slots, ledAt(c, 0))
		if g != 0 || b != 0 {
			t.Errorf("col %d: non-red glow (%d,%d,%d)", c, r, g, b)
		}
		if r != wantTopRow[c] {
			t.Errorf("col %d: red got: %d, want: %d", c, r, wantTopRow[c])
		}
	}
	// Everything off the top row stays black.
	for c := 0; c < icled.MatrixCols; c++ {
		for row := 1; row < icled.MatrixRows; row++ {
			if r, g, b := decodeLed(t, slots, ledAt(c, row)); r != 0 || g != 0 || b != 0 {
				t.Errorf("col %d row %d: got (%d,%d,%d), want black", c, row, r, g, b)
			}
		}
	}
}

func TestSweepBounces(t *testing.T) {
	m, e := newTestMatrix(t)
	s := NewSweep(102, time.Millisecond)
	now := time.Now()
	s.Start(m, now)

	headCols := []int{}
	head := uint8(102)
	for i := 0; i < 3*(icled.MatrixCols-1); i++ {
		slots := frame(t, m, e, s, now)
		for c := 0; c < icled.MatrixCols; c++ {
			if r, _, _ := decodeLed(t, slots, ledAt(c, 0)); r == head {
				headCols = append(headCols, c)
			}
		}
	}
	// One head per frame, sweeping 0..14..0..14.
	if len(headCols) != 3*(icled.MatrixCols-1) {
		t.Fatalf("wrong head count, got: %d, want: %d", len(headCols), 3*(icled.MatrixCols-1))
	}
	for i, c := range headCols {
		want := i % (2 * (icled.MatrixCols - 1))
		if want > icled.MatrixCols-1 {
			want = 2*(icled.MatrixCols-1) - want
		}
		if c != want {
			t.Fatalf("frame %d: head at col %d, want %d", i, c, want)
		}
	}
}

func TestColorFadeWarmGlow(t *testing.T) {
	m, e := newTestMatrix(t)
	cf := NewColorFade(200, time.Millisecond)
	now := time.Now()
	cf.Start(m, now)
	slots := frame(t, m, e, cf, now)

	// Head at col 0: yellowish, so red and green lit, never blue, and
	// red at least as strong as green through the whole trail.
	r, g, b := decodeLed(t, slots, ledAt(0, 0))
	if r == 0 || g == 0 {
		t.Errorf("head got (%d,%d,%d), want red+green lit", r, g, b)
	}
	lastR := 255
	for c := 0; c < 4; c++ {
		r, g, b := decodeLed(t, slots, ledAt(c, 0))
		if b != 0 {
			t.Errorf("col %d: blue lit: (%d,%d,%d)", c, r, g, b)
		}
		if g > r {
			t.Errorf("col %d: green louder than red: (%d,%d,%d)", c, r, g, b)
		}
		if int(r) > lastR {
			t.Errorf("col %d: glow brighter than its neighbor nearer the head", c)
		}
		lastR = int(r)
	}
	for c := 4; c < icled.MatrixCols; c++ {
		if r, g, b := decodeLed(t, slots, ledAt(c, 0)); r != 0 || g != 0 || b != 0 {
			t.Errorf("col %d: outside the glow but lit: (%d,%d,%d)", c, r, g, b)
		}
	}
}

func TestStarfield(t *testing.T) {
	m, e := newTestMatrix(t)
	sf := NewStarfield(20, time.Millisecond)
	sf.rnd = rand.New(rand.NewSource(1))
	now := time.Now()

	sf.Start(m, now)
	if err := m.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	for i := 0; i < icled.LedCount; i++ {
		if r, g, b := decodeLed(t, e.last, i); r != 0 || g != 10 || b != 20 {
			t.Fatalf("LED %d: background got (%d,%d,%d), want (0,10,20)", i, r, g, b)
		}
	}

	for f := 0; f < 50; f++ {
		slots := frame(t, m, e, sf, now)
		stars := 0
		for i := 0; i < icled.LedCount; i++ {
			switch r, g, b := decodeLed(t, slots, i); {
			case r == 0 && g == 10 && b == 20: // background
			case r == 20 && g == 20 && b == 20: // white star
				stars++
			case r == 20 && g == 20 && b == 0: // yellow star
				stars++
			default:
				t.Fatalf("frame %d LED %d: unexpected color (%d,%d,%d)", f, i, r, g, b)
			}
		}
		if stars > maxStars {
			t.Fatalf("frame %d: %d stars, want at most %d", f, stars, maxStars)
		}
	}
}

func TestSnakeStaysGreenAndBounded(t *testing.T) {
	m, e := newTestMatrix(t)
	sn := NewSnake(40, time.Millisecond)
	now := time.Now()
	sn.Start(m, now)

	sawLit := false
	for f := 0; f < 500; f++ {
		slots := frame(t, m, e, sn, now)
		lit := 0
		for i := 0; i < icled.LedCount; i++ {
			r, g, b := decodeLed(t, slots, i)
			if r != 0 || b != 0 {
				t.Fatalf("frame %d LED %d: non-green pixel (%d,%d,%d)", f, i, r, g, b)
			}
			if g > 40 {
				t.Fatalf("frame %d LED %d: brighter than the head: %d", f, i, g)
			}
			if g > 0 {
				lit++
			}
		}
		if lit > 16 {
			t.Fatalf("frame %d: %d pixels lit, want at most the max snake length", f, lit)
		}
		if lit > 0 {
			sawLit = true
		}
	}
	if !sawLit {
		t.Errorf("snake never lit a pixel")
	}
}
