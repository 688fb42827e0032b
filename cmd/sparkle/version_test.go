package main

import "testing"

func TestIsCompatible(t *testing.T) {
	cases := []struct {
		other string
		want  bool
	}{
		{"v0.1.0", true},
		{"0.9.5", true},
		{"v1.0.0", false},
		{"not-a-version", false},
	}
	for _, tc := range cases {
		if got := isCompatible(tc.other); got != tc.want {
			t.Errorf("isCompatible(%q) = %v, want %v", tc.other, got, tc.want)
		}
	}
}
