package tensor

import (
	"errors"
	"testing"
)

func TestFromSliceRejectsBadShape(t *testing.T) {
	_, err := FromSlice(CPU, []float64{1, 2, 3}, 2, 2)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestNewRejectsNegativeDimension(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for negative dimension")
		}
	}()
	New(CPU, -1, 2)
}

func TestReshapeSharesStorage(t *testing.T) {
	orig, err := FromSlice(CPU, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	view, err := orig.Reshape(3, 2)
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	view.Data()[0] = 42
	if orig.Data()[0] != 42 {
		t.Fatalf("reshape did not share storage")
	}
	if _, err := orig.Reshape(4, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestMatrixViewNeedsRank2(t *testing.T) {
	cube := New(CPU, 2, 2, 2)
	if _, err := cube.Matrix(); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	flat, _ := cube.Reshape(2, 4)
	m, err := flat.Matrix()
	if err != nil {
		t.Fatalf("Matrix: %v", err)
	}
	m.Set(0, 0, 7)
	if cube.Data()[0] != 7 {
		t.Fatalf("matrix view did not share storage")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a, _ := FromSlice(CPU, []float64{1, 2}, 2)
	b := a.Clone()
	b.Data()[0] = 99
	if a.Data()[0] != 1 {
		t.Fatalf("clone shares storage with original")
	}
	if b.Device() != a.Device() {
		t.Fatalf("clone changed device")
	}
}
