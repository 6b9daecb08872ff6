package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	effects "github.com/Jon-Bright/icledctl/effects"
	icled "github.com/Jon-Bright/icledctl/icled"
	rpi "github.com/Jon-Bright/icledctl/rpi"
)

var freq = flag.Uint("freq", icled.BitRate, "The bit frequency for the ICLED data line, in Hz")
var dma = flag.Int("dma", 10, "The DMA channel to use for feeding the PWM FIFO")
var pin = flag.Int("pin", 18, "The pin on which ICLED data should be output")
var brightness = flag.Uint("brightness", 96, "Overall effect brightness, 0-255")
var frameDelay = flag.Duration("framedelay", 40*time.Millisecond, "How long each animation frame is shown")
var buttonChip = flag.String("buttonchip", "gpiochip0", "The GPIO chip with the mode button")
var buttonLine = flag.Int("buttonline", 17, "The GPIO line (on buttonchip) with the mode button")
var buttonDebounce = flag.Duration("buttondebounce", 20*time.Millisecond, "Debounce period for the mode button")

// runEffects drives one animation frame at a time, pushing each frame
// to the matrix and sleeping for whatever delay the effect asks for.
// A new effect arriving on modes replaces the current one immediately.
func runEffects(m *icled.Matrix, e effects.Effect, modes <-chan effects.Effect, stop <-chan os.Signal) {
	e.Start(m, time.Now())
	var d time.Duration
	for {
		select {
		case e = <-modes:
			e.Start(m, time.Now())
		case <-time.After(d):
		case <-stop:
			return
		}
		d = e.NextStep(m, time.Now())
		if err := m.Show(); err != nil {
			log.Fatalf("Failed showing frame: %v", err)
		}
	}
}

func main() {
	flag.Parse()
	if *brightness > 255 {
		log.Fatalf("Brightness %d out of range, want 0-255", *brightness)
	}

	rp, err := rpi.NewRPi()
	if err != nil {
		log.Fatalf("Failed initializing hardware: %v", err)
	}
	log.Printf("Driving ICLEDs on a %s", rp.HardwareName())

	ps, err := newPowerSupply(rp)
	if err != nil {
		log.Fatalf("Failed setting up power control: %v", err)
	}
	if err := ps.on(); err != nil {
		log.Fatalf("Failed power-on: %v", err)
	}

	eng, err := rpi.NewPWMEngine(rp, icled.BufferLen, *freq, icled.PwmPeriod, *dma, *pin)
	if err != nil {
		log.Fatalf("Failed creating PWM engine: %v", err)
	}
	defer eng.Close()

	m := icled.New(eng)
	if err := m.Init(); err != nil {
		log.Fatalf("Failed starting transfer: %v", err)
	}

	b := uint8(*brightness)
	efs := []effects.Effect{
		effects.NewSweep(b, *frameDelay),
		effects.NewColorFade(b, *frameDelay),
		effects.NewStarfield(b, *frameDelay),
		effects.NewSnake(b, *frameDelay),
	}
	sel, err := NewSelector(*buttonChip, *buttonLine, *buttonDebounce, efs)
	if err != nil {
		log.Fatalf("Failed setting up mode button: %v", err)
	}
	defer sel.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	runEffects(m, efs[0], sel.C, stop)

	log.Printf("Shutting down")
	if err := m.Clear(); err != nil {
		log.Printf("Failed blanking matrix: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // let the blank frame reach the strip
	if err := eng.Disarm(); err != nil {
		log.Printf("Failed stopping transfer: %v", err)
	}
	if err := ps.off(); err != nil {
		log.Printf("Failed power-off: %v", err)
	}
}
