package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims", "  duplicate charge  ", 0, "duplicate charge"},
		{"strips control", "refund\x00 due\x07", 0, "refund due"},
		{"rune safe cut", "déjà vu", 4, "déjà"},
		{"cut then trim", "ab cd", 3, "ab"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeString(tc.in, tc.max); got != tc.want {
				t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}
