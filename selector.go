package main

import (
	"fmt"
	"log"
	"time"

	"github.com/warthog618/go-gpiocdev"

	effects "github.com/Jon-Bright/icledctl/effects"
)

// Selector turns presses of the mode button into effects on a channel.
// The gpiocdev event handler runs on its own goroutine, so presses are
// posted to C for the main loop to pick up rather than mutating shared
// state. A press that arrives while one is still queued is dropped.
type Selector struct {
	line *gpiocdev.Line
	efs  []effects.Effect
	cur  int
	C    chan effects.Effect
}

func NewSelector(chip string, offset int, debounce time.Duration, efs []effects.Effect) (*Selector, error) {
	s := &Selector{
		efs: efs,
		C:   make(chan effects.Effect, 1),
	}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithEventHandler(s.buttonEvent))
	if err != nil {
		return nil, fmt.Errorf("couldn't request button line %s:%d: %v", chip, offset, err)
	}
	s.line = line
	return s, nil
}

func (s *Selector) buttonEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	s.cur = (s.cur + 1) % len(s.efs)
	e := s.efs[s.cur]
	log.Printf("Button: switching to %s", e.Name())
	select {
	case s.C <- e:
	default:
		log.Printf("Mode switch still pending, dropping press")
	}
}

func (s *Selector) Close() error {
	return s.line.Close()
}
