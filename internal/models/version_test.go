package models

import "testing"

// TestBumpPatch tests patch version increments and malformed fallbacks
func TestBumpPatch(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.0.1", "0.0.2"},
		{"1.2.9", "1.2.10"},
		{"", DefaultVersion},
		{"1.2", DefaultVersion},
		{"1.2.x", DefaultVersion},
		{"a.b.c.d", DefaultVersion},
	}
	for _, c := range cases {
		if got := BumpPatch(c.in); got != c.want {
			t.Errorf("BumpPatch(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
