package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	rpi "github.com/Jon-Bright/icledctl/rpi"
)

var powerCtrlPin = flag.Int("powerctrlpin", -1, "A GPIO pin which, when set high, turns on power for the matrix. -1 means no such pin exists.")
var powerStatusPin = flag.Int("powerstatuspin", -1, "A GPIO pin which indicates healthy power to the matrix. -1 means no such pin exists. Only relevant if powerctrlpin is specified.")
var powerStatusWait = flag.Duration("powerstatuswait", 2*time.Second, "How long to wait for a healthy power signal. Only relevant if powerstatuspin is specified and relevant.")

// powerSupply switches the matrix's 5V rail via GPIO. Boards without
// switchable power use ctrl -1 and every method is a no-op.
type powerSupply struct {
	rp     *rpi.RPi
	ctrl   int
	status int
	wait   time.Duration
}

func newPowerSupply(rp *rpi.RPi) (*powerSupply, error) {
	ps := &powerSupply{rp: rp, ctrl: *powerCtrlPin, status: *powerStatusPin, wait: *powerStatusWait}
	if ps.ctrl < 0 {
		return ps, nil
	}
	if err := rp.GPIOSetOutput(ps.ctrl, rpi.PullNone); err != nil {
		return nil, fmt.Errorf("couldn't set power control to output: %v", err)
	}
	if ps.status < 0 {
		return ps, nil
	}
	if err := rp.GPIOSetInput(ps.status); err != nil {
		return nil, fmt.Errorf("couldn't set power status to input: %v", err)
	}
	return ps, nil
}

// on raises the control pin and, if there's a status pin, polls it
// until the rail reports healthy or the wait expires.
func (ps *powerSupply) on() error {
	if ps.ctrl < 0 {
		return nil
	}
	log.Printf("Power on")
	if err := ps.rp.GPIOSetPin(ps.ctrl, true); err != nil {
		return fmt.Errorf("couldn't set power control high: %v", err)
	}
	if ps.status < 0 {
		return nil
	}
	start := time.Now()
	for {
		val, err := ps.rp.GPIOGetPin(ps.status)
		if err != nil {
			return fmt.Errorf("couldn't query power status: %v", err)
		}
		t := time.Now()
		if val {
			log.Printf("Power stabilized after %v", t.Sub(start))
			return nil
		}
		if t.Sub(start) > ps.wait {
			return fmt.Errorf("timed out waiting for power to be healthy, started %v, now %v", start, t)
		}
		time.Sleep(50 * time.Millisecond) // No point overdoing it - we're not in _that_ much of a rush
	}
}

func (ps *powerSupply) off() error {
	if ps.ctrl < 0 {
		return nil
	}
	log.Printf("Power off")
	if err := ps.rp.GPIOSetPin(ps.ctrl, false); err != nil {
		return fmt.Errorf("couldn't set power control low: %v", err)
	}
	// Waiting for the status pin to drop takes a while and buys nothing.
	return nil
}
