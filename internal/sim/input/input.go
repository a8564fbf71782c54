// Package input holds per-player control state accumulated between ticks.
package input

// MaxDowns is the saturation point of a press counter.
const MaxDowns = 255

// Button counts press transitions since the last tick and whether the button
// is currently held.
type Button struct {
	Downs   uint8
	Pressed bool
}

// AddDowns adds n presses to b, saturating at MaxDowns. overflow reports that
// presses were dropped.
func AddDowns(b Button, n uint8) (out Button, overflow bool) {
	d := uint32(b.Downs) + uint32(n)
	if d > MaxDowns {
		d = MaxDowns
		overflow = true
	}
	b.Downs = uint8(d)
	return b, overflow
}

// Controls is one player's input since the last tick. MouseX is the
// accumulated horizontal look delta.
type Controls struct {
	Left, Right, Up, Down Button
	MouseX                float32
}

// Buttons returns the buttons in wire order.
func (c *Controls) Buttons() [4]*Button {
	return [4]*Button{&c.Left, &c.Right, &c.Up, &c.Down}
}

// Move returns the local movement axes implied by held buttons: +x right,
// +y forward. It is not normalized.
func (c Controls) Move() (x, y float32) {
	if c.Left.Pressed {
		x--
	}
	if c.Right.Pressed {
		x++
	}
	if c.Down.Pressed {
		y--
	}
	if c.Up.Pressed {
		y++
	}
	return x, y
}

// EndTick clears the per-tick accumulators. Held flags persist.
func (c *Controls) EndTick() {
	for _, b := range c.Buttons() {
		b.Downs = 0
	}
	c.MouseX = 0
}
