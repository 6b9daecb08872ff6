package rpi

import (
	"fmt"
)

// PWMEngine binds a fixed-size slot buffer to the PWM+DMA machinery: one
// DMA-addressable buffer, one PWM channel, one running transfer at most.
// Arm copies the caller's 16-bit compare slots into the buffer's 32-bit
// FIFO words and starts the continuous transfer; Disarm aborts it. The
// copy happens while the engine is stopped, so the hardware never reads
// a half-written frame.
type PWMEngine struct {
	rp      *RPi
	buf     *DMABuf
	words   []uint32
	freq    uint
	period  uint32
	pin     int
	running bool
}

// NewPWMEngine maps the peripheral registers and allocates a DMA buffer
// for numSlots compare values clocked out at freq slots/s with period
// ticks per slot, output on the given GPIO pin.
func NewPWMEngine(rp *RPi, numSlots int, freq uint, period uint32, dma int, pin int) (*PWMEngine, error) {
	err := rp.InitGPIO()
	if err != nil {
		return nil, fmt.Errorf("couldn't init GPIO: %v", err)
	}
	err = rp.InitDMA(dma)
	if err != nil {
		return nil, fmt.Errorf("couldn't init DMA %d: %v", dma, err)
	}
	e := PWMEngine{
		rp:     rp,
		freq:   freq,
		period: period,
		pin:    pin,
	}
	e.buf, err = rp.GetDMABuf(uint(numSlots) * 4)
	if err != nil {
		return nil, fmt.Errorf("couldn't get DMA buffer for %d slots: %v", numSlots, err)
	}
	e.words = e.buf.Uint32Slice()[:numSlots]
	err = rp.InitPWM(freq, period, e.buf, uint(numSlots), pin)
	if err != nil {
		rp.FreeDMABuf(e.buf) // Ignore error
		return nil, fmt.Errorf("couldn't init PWM: %v", err)
	}
	return &e, nil
}

// Arm loads slots into the DMA buffer and starts continuous output. The
// buffer length is fixed at creation; a different slot count is an error.
func (e *PWMEngine) Arm(slots []uint16) error {
	if e.running {
		return fmt.Errorf("transfer already armed")
	}
	if len(slots) != len(e.words) {
		return fmt.Errorf("got %d slots, buffer takes %d", len(slots), len(e.words))
	}
	for i, s := range slots {
		e.words[i] = uint32(s)
	}
	e.rp.StartDMA(e.buf)
	e.running = true
	return nil
}

// Disarm aborts the running transfer. Disarming an idle engine is a
// no-op, which lets the driver re-arm unconditionally.
func (e *PWMEngine) Disarm() error {
	if !e.running {
		return nil
	}
	e.running = false
	return e.rp.StopDMA()
}

// Close stops everything and releases the DMA buffer. The engine is
// unusable afterwards.
func (e *PWMEngine) Close() error {
	err := e.Disarm()
	e.rp.StopPWM()
	if ferr := e.rp.FreeDMABuf(e.buf); err == nil {
		err = ferr
	}
	return err
}
