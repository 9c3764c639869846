package services

import "testing"

// TestSlugify tests slug derivation from titles
func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Publications", "publications"},
		{"My Test Register", "my-test-register"},
		{"  spaced   out  ", "spaced-out"},
		{"Ümlauts & Symbols!", "mlauts-symbols"},
		{"already-a-slug", "already-a-slug"},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
