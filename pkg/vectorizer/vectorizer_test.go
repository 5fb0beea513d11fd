package vectorizer

import (
	"math"
	"reflect"
	"testing"
)

func TestEncodeWeightedTermsDeterministic(t *testing.T) {
	terms := map[string]float64{
		"food.taco":             1.8,
		"food.filling.barbacoa": 1.2,
		"biz.type.restaurant":   0.9,
	}

	first := EncodeWeightedTerms(terms)
	second := EncodeWeightedTerms(terms)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical vectors across runs")
	}
	if len(first) != Dim {
		t.Fatalf("expected %d dimensions, got %d", Dim, len(first))
	}

	var norm float64
	for _, v := range first {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("expected unit norm, got %f", math.Sqrt(norm))
	}
}

func TestEncodeWeightedTermsEmpty(t *testing.T) {
	vec := EncodeWeightedTerms(nil)
	if len(vec) != Dim {
		t.Fatalf("expected %d dimensions, got %d", Dim, len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, found %f at %d", v, i)
		}
	}
}

func TestEncodeWeightedTermsDistinguishesBags(t *testing.T) {
	a := EncodeWeightedTerms(map[string]float64{"food.taco": 1.0})
	b := EncodeWeightedTerms(map[string]float64{"service.nail.manicure": 1.0})
	if reflect.DeepEqual(a, b) {
		t.Fatal("distinct term bags should not collide into equal vectors")
	}
}

func TestCosine(t *testing.T) {
	a := EncodeTerms([]string{"food.taco", "food.filling.carnitas"})

	if got := Cosine(a, a); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("self similarity = %f, want 1.0", got)
	}
	if got := Cosine(a, make([]float32, Dim)); got != 0 {
		t.Errorf("zero vector similarity = %f, want 0", got)
	}
	if got := Cosine(a, []float32{1, 0}); got != 0 {
		t.Errorf("mismatched widths similarity = %f, want 0", got)
	}
}
