package argcode

import "testing"

func TestArgEncoding(t *testing.T) {
	if !Empty.IsEmpty() {
		t.Fatalf("Empty should be empty")
	}
	if Empty.IsConstant() || Empty.IsVariable() {
		t.Fatalf("Empty should be neither constant nor variable")
	}

	c := Constant(7)
	if c.IsEmpty() || c.IsVariable() {
		t.Fatalf("Constant(7) misclassified: %v", c)
	}
	if !c.IsConstant() {
		t.Fatalf("Constant(7) should be constant")
	}
	if c.Decode() != 7 {
		t.Fatalf("Constant(7).Decode() = %d, want 7", c.Decode())
	}

	v := Variable(3)
	if v.IsEmpty() || v.IsConstant() {
		t.Fatalf("Variable(3) misclassified: %v", v)
	}
	if !v.IsVariable() {
		t.Fatalf("Variable(3) should be a variable")
	}
	if v.Decode() != 3 {
		t.Fatalf("Variable(3).Decode() = %d, want 3", v.Decode())
	}
}

func TestArgVariableZeroDistinctFromEmpty(t *testing.T) {
	v0 := Variable(0)
	if v0 == Empty {
		t.Fatalf("Variable(0) must not collide with Empty")
	}
	if !v0.IsVariable() {
		t.Fatalf("Variable(0) must be classified as a variable")
	}
}
