package extensions

import (
	"math"
	"testing"
)

func AssertAreEqual[T comparable](t *testing.T, name string, expected T, actual T) {
	t.Helper()
	if expected != actual {
		t.Fatalf("value mismatch for %s, expected %v, got %v", name, expected, actual)
	}
}

func AssertNillability[T comparable](t *testing.T, name string, expected bool, actual *T) {
	t.Helper()
	if (actual == nil) != expected {
		t.Fatalf("value mismatch for %s, expected nil %v, got nil %v", name, expected, (actual == nil))
	}
}

// AssertWithin fails when actual is further than tolerance away from expected
func AssertWithin(t *testing.T, name string, expected, actual, tolerance float64) {
	t.Helper()
	if math.IsNaN(actual) || math.Abs(expected-actual) > tolerance {
		t.Fatalf("value mismatch for %s, expected %.10f (+/- %g), got %.10f", name, expected, tolerance, actual)
	}
}
