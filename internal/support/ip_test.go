package support

import "testing"

func TestNormalizeIP(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"203.0.113.7", "203.0.113.7"},
		{" 203.0.113.7 ", "203.0.113.7"},
		{"203.0.113.7:443", "203.0.113.7"},
		{"::ffff:203.0.113.7", "203.0.113.7"},
		{"[2001:db8::1]:8080", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
		{"not-an-ip", ""},
		{"", ""},
		{"203.0.113.7:99999", "203.0.113.7"},
	}

	for _, tc := range cases {
		if got := NormalizeIP(tc.raw); got != tc.want {
			t.Errorf("NormalizeIP(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestIsLoopbackOrPrivate(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"203.0.113.7", false},
		{"2001:db8::1", false},
	}

	for _, tc := range cases {
		if got := IsLoopbackOrPrivate(tc.ip); got != tc.want {
			t.Errorf("IsLoopbackOrPrivate(%q) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}
