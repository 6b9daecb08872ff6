// Package effects holds the demo animations for the ICLED matrix. An
// Effect only mutates pixels; the caller decides when to Show and when
// to take the next step.
package effects

import (
	"math/rand"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	icled "github.com/Jon-Bright/icledctl/icled"
)

type Effect interface {
	Start(m *icled.Matrix, now time.Time)
	NextStep(m *icled.Matrix, now time.Time) time.Duration
	Name() string
}

// ledAt maps matrix coordinates to a chain index. The chain snakes
// column by column, top to bottom, so column c's top pixel is c*rows.
func ledAt(col, row int) int {
	return col*icled.MatrixRows + row
}

func scale(v uint8, num, div int) uint8 {
	return uint8(int(v) * num / div)
}

// Sweep is the classic red scanner: a bright pixel bounces along the top
// row with a dimmer two-pixel glow trailing on both sides.
type Sweep struct {
	frame      time.Duration
	brightness uint8
	col        int
	direction  int
}

func NewSweep(brightness uint8, frame time.Duration) *Sweep {
	return &Sweep{frame: frame, brightness: brightness, direction: 1}
}

func (s *Sweep) Start(m *icled.Matrix, now time.Time) {
	s.col = 0
	s.direction = 1
}

func (s *Sweep) NextStep(m *icled.Matrix, now time.Time) time.Duration {
	for c := 0; c < icled.MatrixCols; c++ {
		m.SetPixel(ledAt(c, 0), 0, 0, 0)
	}

	head := s.brightness
	m.SetPixel(ledAt(s.col, 0), head, 0, 0)
	if s.col > 0 {
		m.SetPixel(ledAt(s.col-1, 0), scale(head, 100, 255), 0, 0)
	}
	if s.col > 1 {
		m.SetPixel(ledAt(s.col-2, 0), scale(head, 40, 255), 0, 0)
	}
	if s.col < icled.MatrixCols-1 {
		m.SetPixel(ledAt(s.col+1, 0), scale(head, 100, 255), 0, 0)
	}
	if s.col < icled.MatrixCols-2 {
		m.SetPixel(ledAt(s.col+2, 0), scale(head, 40, 255), 0, 0)
	}

	s.col += s.direction
	if s.col >= icled.MatrixCols-1 {
		s.col = icled.MatrixCols - 1
		s.direction = -1
	} else if s.col <= 0 {
		s.col = 0
		s.direction = 1
	}
	return s.frame
}

func (s *Sweep) Name() string {
	return "SWEEP"
}

// ColorFade is the sweep with a warm glow instead of plain red: the head
// is yellow and the trail fades through orange down to dark red.
type ColorFade struct {
	frame      time.Duration
	brightness uint8
	col        int
	direction  int
}

func NewColorFade(brightness uint8, frame time.Duration) *ColorFade {
	return &ColorFade{frame: frame, brightness: brightness, direction: 1}
}

func (cf *ColorFade) Start(m *icled.Matrix, now time.Time) {
	cf.col = 0
	cf.direction = 1
}

// glow returns the color at the given distance from the head: hue runs
// yellow down to red, brightness drops off with distance.
func (cf *ColorFade) glow(dist int) (uint8, uint8, uint8) {
	hues := []float64{54, 36, 18, 0}
	vals := []float64{1.0, 0.9, 0.6, 0.25}
	c := colorful.Hsv(hues[dist], 1.0, vals[dist]*float64(cf.brightness)/255.0)
	return c.RGB255()
}

func (cf *ColorFade) NextStep(m *icled.Matrix, now time.Time) time.Duration {
	for c := 0; c < icled.MatrixCols; c++ {
		m.SetPixel(ledAt(c, 0), 0, 0, 0)
	}

	for dist := 3; dist >= 0; dist-- {
		r, g, b := cf.glow(dist)
		if cf.col-dist >= 0 {
			m.SetPixel(ledAt(cf.col-dist, 0), r, g, b)
		}
		if dist > 0 && cf.col+dist < icled.MatrixCols {
			m.SetPixel(ledAt(cf.col+dist, 0), r, g, b)
		}
	}

	cf.col += cf.direction
	if cf.col >= icled.MatrixCols-1 {
		cf.col = icled.MatrixCols - 1
		cf.direction = -1
	} else if cf.col <= 0 {
		cf.col = 0
		cf.direction = 1
	}
	return cf.frame
}

func (cf *ColorFade) Name() string {
	return "COLORFADE"
}

const maxStars = 10

type star struct {
	index  int
	age    int
	yellow bool
}

// Starfield blinks white and yellow stars over a cyan background. Stars
// appear at random positions with a 4-8 frame lifetime, at most maxStars
// at a time, and restore the background when they burn out.
type Starfield struct {
	frame      time.Duration
	brightness uint8
	stars      [maxStars]star
	rnd        *rand.Rand
}

func NewStarfield(brightness uint8, frame time.Duration) *Starfield {
	return &Starfield{
		frame:      frame,
		brightness: brightness,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (sf *Starfield) background(i int, m *icled.Matrix) {
	m.SetPixel(i, 0, sf.brightness/2, sf.brightness)
}

func (sf *Starfield) Start(m *icled.Matrix, now time.Time) {
	sf.stars = [maxStars]star{}
	for i := 0; i < icled.LedCount; i++ {
		sf.background(i, m)
	}
}

func (sf *Starfield) NextStep(m *icled.Matrix, now time.Time) time.Duration {
	for i := range sf.stars {
		if sf.stars[i].age == 0 && sf.rnd.Intn(100) < 15 {
			sf.stars[i] = star{
				index:  sf.rnd.Intn(icled.LedCount),
				age:    4 + sf.rnd.Intn(5),
				yellow: sf.rnd.Intn(2) == 1,
			}
		}
	}

	for i := range sf.stars {
		s := &sf.stars[i]
		if s.age == 0 {
			continue
		}
		if s.yellow {
			m.SetPixel(s.index, sf.brightness, sf.brightness, 0)
		} else {
			m.SetPixel(s.index, sf.brightness, sf.brightness, sf.brightness)
		}
		s.age--
		if s.age == 0 {
			sf.background(s.index, m)
		}
	}
	return sf.frame
}

func (sf *Starfield) Name() string {
	return "STARFIELD"
}

// Snake traversal modes, cycled every 160 frames.
const (
	dirHorizontal = iota
	dirVertical
	dirDiagonalRD
	dirDiagonalLU
	dirModeCount
)

// Snake crawls a green trail across the matrix, fading from a bright
// head to a dark tail, growing and shrinking over time and cycling
// through horizontal, vertical and diagonal traversals.
type Snake struct {
	frame      time.Duration
	brightness uint8
	tick       int
	head       int
	length     int
	growing    bool
	mode       int
}

func NewSnake(brightness uint8, frame time.Duration) *Snake {
	return &Snake{frame: frame, brightness: brightness, length: 8, growing: true}
}

func (sn *Snake) Start(m *icled.Matrix, now time.Time) {
	sn.tick = 0
	sn.head = 0
	sn.length = 8
	sn.growing = true
	sn.mode = dirHorizontal
}

// cell maps the s'th step of the current traversal to a chain index.
func (sn *Snake) cell(step int) int {
	rows, cols := icled.MatrixRows, icled.MatrixCols
	switch sn.mode {
	case dirVertical:
		return (step / rows * rows) + step%rows
	case dirDiagonalRD:
		return (step%cols)*rows + step%rows
	case dirDiagonalLU:
		return (cols-1-step%cols)*rows + (rows - 1 - step%rows)
	default: // dirHorizontal: row-wise, left to right
		return (step%cols)*rows + step/cols
	}
}

func (sn *Snake) NextStep(m *icled.Matrix, now time.Time) time.Duration {
	for i := 0; i < icled.LedCount; i++ {
		m.SetPixel(i, 0, 0, 0)
	}

	for s := 0; s < sn.length; s++ {
		step := sn.head - s
		if step < 0 || step >= icled.LedCount {
			continue
		}
		level := sn.brightness - uint8(s*int(sn.brightness)/sn.length)
		m.SetPixel(sn.cell(step), 0, level, 0)
	}

	sn.tick++
	sn.head++

	if sn.tick%160 == 0 {
		sn.head = 0
		sn.mode = (sn.mode + 1) % dirModeCount
	}
	if sn.tick%25 == 0 {
		if sn.growing {
			sn.length++
			if sn.length > 15 {
				sn.growing = false
			}
		} else if sn.length > 4 {
			sn.length--
		} else {
			sn.growing = true
		}
	}
	if sn.head > icled.LedCount+sn.length {
		sn.head = 0
	}
	return sn.frame
}

func (sn *Snake) Name() string {
	return "SNAKE"
}
