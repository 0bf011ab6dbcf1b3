package smtp

import "testing"

func TestNormalizePeer(t *testing.T) {
	cases := map[string]string{
		"[::ffff:192.0.2.10]:54321": "192.0.2.10:54321",
		"192.0.2.10:54321":          "192.0.2.10:54321",
		"[::1]:54321":               "[::1]:54321",
	}
	for in, want := range cases {
		if got := normalizePeer(in); got != want {
			t.Errorf("normalizePeer(%q) = %q, want %q", in, got, want)
		}
	}
}
