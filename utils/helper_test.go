package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		month, year, want int
	}{
		{1, 2026, 31},
		{2, 2026, 28},
		{2, 2028, 29},
		{2, 2100, 28},
		{4, 2026, 30},
		{12, 2026, 31},
	}
	for _, tc := range cases {
		if got := DaysInMonth(tc.month, tc.year); got != tc.want {
			t.Fatalf("%d/%d: got %d, want %d", tc.month, tc.year, got, tc.want)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100", "100"},
		{" 42.50 ", "42.5"},
		{"1,200,000", "1200000"},
		{"0", "0"},
	}
	for _, tc := range cases {
		got, err := ParseDecimal(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%q: got %s, want %s", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "   ", "abc", "12x"} {
		if _, err := ParseDecimal(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (order must be preserved)", got, want)
		}
	}
}
