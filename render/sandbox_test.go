package render

import "testing"

func TestTransparentBackground_FullyTransparent(t *testing.T) {
	c := transparentBackground()
	if c.R != 0 || c.G != 0 || c.B != 0 {
		t.Fatalf("background = %+v, want black", c)
	}
	if c.A == nil {
		t.Fatal("alpha not set; an absent alpha means opaque in the devtools protocol")
	}
	if *c.A != 0 {
		t.Fatalf("alpha = %v, want 0", *c.A)
	}
}
