package main

import (
	"math/rand"

	"meshwalk.io/internal/sim/input"
)

// wanderer scripts a bot's input: it holds a random set of movement buttons
// for a while, then picks another, and nudges its heading every message.
type wanderer struct {
	rng  *rand.Rand
	held input.Controls
	left int
}

func newWanderer(seed int64) *wanderer {
	return &wanderer{rng: rand.New(rand.NewSource(seed))}
}

// next returns the controls for one message. A button that becomes held in
// this message carries one press.
func (w *wanderer) next() input.Controls {
	var c input.Controls
	if w.left <= 0 {
		prev := w.held
		w.held = input.Controls{}
		w.held.Up.Pressed = w.rng.Intn(4) != 0
		w.held.Down.Pressed = !w.held.Up.Pressed && w.rng.Intn(3) == 0
		switch w.rng.Intn(3) {
		case 0:
			w.held.Left.Pressed = true
		case 1:
			w.held.Right.Pressed = true
		}
		c = w.held
		pb := prev.Buttons()
		for i, b := range c.Buttons() {
			if b.Pressed && !pb[i].Pressed {
				b.Downs = 1
			}
		}
		w.left = 10 + w.rng.Intn(40)
	} else {
		c = w.held
	}
	w.left--
	c.MouseX = float32(w.rng.NormFloat64() * 4)
	return c
}
