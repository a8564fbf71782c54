package input

import "testing"

func TestAddDowns_Saturates(t *testing.T) {
	b, over := AddDowns(Button{}, 200)
	if over || b.Downs != 200 {
		t.Fatalf("first add: downs=%d overflow=%v", b.Downs, over)
	}
	b, over = AddDowns(b, 200)
	if !over || b.Downs != 255 {
		t.Fatalf("second add: downs=%d overflow=%v", b.Downs, over)
	}
	b, over = AddDowns(Button{Downs: 250}, 5)
	if over || b.Downs != 255 {
		t.Fatalf("exact fill: downs=%d overflow=%v", b.Downs, over)
	}
}

func TestControls_MoveAndEndTick(t *testing.T) {
	c := Controls{MouseX: 0.5}
	c.Left = Button{Downs: 2, Pressed: true}
	c.Up = Button{Downs: 1, Pressed: true}
	if x, y := c.Move(); x != -1 || y != 1 {
		t.Fatalf("move=(%v,%v)", x, y)
	}

	c.EndTick()
	for i, b := range c.Buttons() {
		if b.Downs != 0 {
			t.Fatalf("button %d downs=%d after EndTick", i, b.Downs)
		}
	}
	if !c.Left.Pressed || !c.Up.Pressed {
		t.Fatalf("held flags should survive EndTick")
	}
	if c.MouseX != 0 {
		t.Fatalf("mousex=%v after EndTick", c.MouseX)
	}
}
