package noise

import (
	"testing"
)

func TestNewSelectsAlgorithm(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		wantType  string
		wantErr   bool
	}{
		{"default is simplex", "", "simplex", false},
		{"simplex", "simplex", "simplex", false},
		{"case insensitive", " Perlin ", "perlin", false},
		{"unknown", "worley", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, err := New(tt.algorithm, 42)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.algorithm, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch field.(type) {
			case *Simplex:
				if tt.wantType != "simplex" {
					t.Errorf("expected %s field, got simplex", tt.wantType)
				}
			case *Perlin:
				if tt.wantType != "perlin" {
					t.Errorf("expected %s field, got perlin", tt.wantType)
				}
			default:
				t.Errorf("unexpected field type %T", field)
			}
		})
	}
}

func TestFieldsAreDeterministic(t *testing.T) {
	for _, algorithm := range []string{AlgorithmSimplex, AlgorithmPerlin} {
		t.Run(algorithm, func(t *testing.T) {
			a, err := New(algorithm, 1337)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			b, err := New(algorithm, 1337)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			for i := 0; i < 200; i++ {
				x := float64(i) * 0.37
				y := float64(i%17) * 0.11
				first := a.Sample(x, y)
				if again := a.Sample(x, y); again != first {
					t.Fatalf("repeated sample differs at (%f, %f): %v vs %v", x, y, first, again)
				}
				if other := b.Sample(x, y); other != first {
					t.Fatalf("same seed differs at (%f, %f): %v vs %v", x, y, first, other)
				}
			}
		})
	}
}

func TestFieldsStayInUnitRange(t *testing.T) {
	for _, algorithm := range []string{AlgorithmSimplex, AlgorithmPerlin} {
		t.Run(algorithm, func(t *testing.T) {
			field, err := New(algorithm, 7)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			for xi := 0; xi < 60; xi++ {
				for yi := 0; yi < 60; yi++ {
					v := field.Sample(float64(xi)*0.1, float64(yi)*0.1)
					if v < -1 || v > 1 {
						t.Fatalf("sample out of range at (%d, %d): %v", xi, yi, v)
					}
				}
			}
		})
	}
}

func TestSimplexSeedsDiffer(t *testing.T) {
	a := NewSimplex(1)
	b := NewSimplex(2)
	if a.Seed() != 1 || b.Seed() != 2 {
		t.Fatalf("unexpected seeds %d, %d", a.Seed(), b.Seed())
	}

	differs := false
	for i := 1; i < 50; i++ {
		x, y := float64(i)*0.3, float64(i)*0.7
		if a.Sample(x, y) != b.Sample(x, y) {
			differs = true
			break
		}
	}
	if !differs {
		t.Fatal("expected different seeds to produce different samples")
	}
}
