// Package icled drives a fixed 7x15 matrix of ICLED/WS2812-class GRB
// LEDs. Pixel colors are kept in a store that's only ever written by the
// caller; Show expands the whole store into a buffer of PWM compare
// values and hands it to the hardware engine, which streams it to the
// chain continuously via DMA.
package icled

import (
	"errors"
	"fmt"
)

const (
	LedCount   = 105
	MatrixRows = 7
	MatrixCols = 15

	BitsPerLed = 24  // 8 bits each of G, R, B
	ResetSlots = 200 // trailing idle slots, >50us of low level to latch the frame
	BufferLen  = LedCount*BitsPerLed + ResetSlots

	BitRate = 800000 // wire bits/s, ~1.25us per bit

	// One slot is one PWM period of PwmPeriod ticks. The chain reads a
	// ~32% duty pulse as a 0 bit and ~64% as a 1 bit.
	PwmPeriod = 40
	Pwm0      = 13
	Pwm1      = 26
	PwmIdle   = 0
)

// Engine is the hardware PWM+DMA session. Arm binds the slot buffer and
// starts continuous output; Disarm stops a running transfer. The buffer
// address and length bind only at Arm time, so new data always needs a
// Disarm/Arm pair. Neither call is retried on failure.
type Engine interface {
	Arm(slots []uint16) error
	Disarm() error
}

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateRunning
	stateRearming
)

// Matrix owns the pixel store, the slot buffer and the single transfer
// session. It is not safe for concurrent use: all calls are expected
// from one goroutine, typically the main loop.
type Matrix struct {
	eng    Engine
	pixels []byte   // LedCount*3 bytes in wire order G,R,B
	slots  []uint16 // BufferLen compare values, fully rebuilt by every Show
	state  sessionState
}

func New(eng Engine) *Matrix {
	return &Matrix{
		eng:    eng,
		pixels: make([]byte, LedCount*3),
		slots:  make([]uint16, BufferLen),
	}
}

// Init zeroes every pixel and starts the first transfer session, leaving
// the chain running all-black. It must precede SetPixel, Show and Clear.
// Calling it again tears down any running session and resets all state.
func (m *Matrix) Init() error {
	if m.state == stateRunning {
		if err := m.eng.Disarm(); err != nil {
			m.state = stateUninitialized
			return fmt.Errorf("couldn't stop running transfer: %v", err)
		}
	}
	m.state = stateUninitialized
	for i := range m.pixels {
		m.pixels[i] = 0
	}
	m.encode()
	if err := m.eng.Arm(m.slots); err != nil {
		return fmt.Errorf("couldn't arm transfer: %v", err)
	}
	m.state = stateRunning
	return nil
}

// SetPixel queues a color change for the LED at index i. Nothing reaches
// the hardware until Show. Indexes outside [0, LedCount) are ignored.
func (m *Matrix) SetPixel(i int, r, g, b uint8) {
	if i < 0 || i >= LedCount {
		return
	}
	m.pixels[i*3+0] = g // wire order is G,R,B
	m.pixels[i*3+1] = r
	m.pixels[i*3+2] = b
}

var errNoSession = errors.New("no transfer session, call Init first")

// Show rebuilds the slot buffer from the pixel store and re-arms the
// engine with it, stopping the running transfer first. It returns as
// soon as the new transfer is started; it does not wait for the frame
// to finish transmitting. Any engine failure is fatal: the session is
// gone and the Matrix needs a fresh Init.
func (m *Matrix) Show() error {
	switch m.state {
	case stateUninitialized:
		return errNoSession
	case stateRearming:
		return errors.New("re-arm already in flight")
	}
	m.encode()
	m.state = stateRearming
	if err := m.eng.Disarm(); err != nil {
		m.state = stateUninitialized
		return fmt.Errorf("couldn't stop running transfer: %v", err)
	}
	if err := m.eng.Arm(m.slots); err != nil {
		m.state = stateUninitialized
		return fmt.Errorf("couldn't restart transfer: %v", err)
	}
	m.state = stateRunning
	return nil
}

// Clear sets every pixel black and commits immediately.
func (m *Matrix) Clear() error {
	for i := range m.pixels {
		m.pixels[i] = 0
	}
	return m.Show()
}
