package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only spaces", "   ", ""},
		{"leading and trailing", "  Meeting Room 4  ", "Meeting Room 4"},
		{"internal runs", "Hot\t\tDesk   Pool", "Hot Desk Pool"},
		{"newlines", "Private\nOffice", "Private Office"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TrimAndNormalize(tc.in)
			if got != tc.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeFreeText(t *testing.T) {
	in := "Seasonal\x00 demand:\n  fewer desks   needed\x1b"
	want := "Seasonal demand: fewer desks needed"
	if got := NormalizeFreeText(in); got != want {
		t.Errorf("NormalizeFreeText(%q) = %q, want %q", in, got, want)
	}
}
