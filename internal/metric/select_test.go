package metric

import (
	"errors"
	"math"
	"testing"
)

func TestArgMin(t *testing.T) {
	nan := math.NaN()
	testCases := []struct {
		name       string
		scores     []float64
		want       int
		degenerate bool
	}{
		{"v_shape", []float64{9, 5, 2, 5, 9}, 2, false},
		{"duplicate_minimum_first_wins", []float64{7, 3, 8, 3, 9}, 1, false},
		{"nan_skipped", []float64{nan, 4, nan, 6}, 1, false},
		{"nan_before_minimum", []float64{nan, 9, 1}, 2, false},
		{"constant", []float64{5, 5, 5}, 0, true},
		{"all_zero", []float64{0, 0, 0, 0}, 0, true},
		{"all_nan", []float64{nan, nan}, 0, true},
		{"empty", nil, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ArgMin(tc.scores)
			if tc.degenerate {
				if !errors.Is(err, ErrDegenerateSignal) {
					t.Errorf("error = %v, want ErrDegenerateSignal", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ArgMin = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestEdgeSignal(t *testing.T) {
	got := EdgeSignal([]float64{10, 10, 10, 90, 90, 90})
	want := []float64{0, 0, 80, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EdgeSignal = %v, want %v", got, want)
		}
	}
}

func TestEdgeIndex(t *testing.T) {
	testCases := []struct {
		name       string
		intensity  []float64
		want       int
		degenerate bool
	}{
		{"rising_step", []float64{10, 10, 10, 90, 90, 90}, 2, false},
		{"falling_step", []float64{50, 50, 50, 50, 5, 5, 5, 5}, 3, false},
		{"tie_first_wins", []float64{0, 0, 0, 10, 20, 30, 30, 30, 30}, 2, false},
		{"steepest_of_two", []float64{0, 0, 0, 5, 5, 40, 40, 40, 40}, 4, false},
		{"jump_in_suppressed_lead", []float64{0, 100, 100, 100, 100, 100, 100}, 0, true},
		{"wraparound_ignored", []float64{0, 0, 0, 0, 0, 0, 100}, 0, true},
		{"flat", []float64{3, 3, 3, 3, 3, 3}, 0, true},
		{"too_short", []float64{1, 9, 1, 9, 1}, 0, true},
		{"empty", nil, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EdgeIndex(tc.intensity)
			if tc.degenerate {
				if !errors.Is(err, ErrDegenerateSignal) {
					t.Errorf("error = %v, want ErrDegenerateSignal", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("EdgeIndex = %d, want %d", got, tc.want)
			}
		})
	}
}
