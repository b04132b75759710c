package httpapi

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+55 11 99999-0000", "+5511999990000"},
		{"(11) 99999-0000", "+5511999990000"},
		{"+1 415 555 2671", "+14155552671"},
		{"not-a-phone", ""},
		{"", ""},
		{"123", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
