package encoding

import (
	"strings"
	"testing"
)

func TestRLE_RoundTrip(t *testing.T) {
	cases := []string{
		"",
		"P",
		"SSWWPNNNESSSENNNESSSP",
		strings.Repeat("N", 200) + "E",
	}
	for _, in := range cases {
		enc := EncodeRLE([]byte(in))
		got, err := DecodeRLE(enc)
		if err != nil {
			t.Fatalf("DecodeRLE(%q): %v", in, err)
		}
		if string(got) != in {
			t.Fatalf("round trip %q -> %q", in, got)
		}
	}
}

func TestRLE_Compresses(t *testing.T) {
	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'N'
	}
	if enc := EncodeRLE(long); len(enc) > 8 {
		t.Fatalf("expected a single short pair, got %q", enc)
	}
}

func TestDecodeRLE_Errors(t *testing.T) {
	for _, in := range []string{"!!!", "gA==", "TgA="} {
		if _, err := DecodeRLE(in); err == nil {
			t.Fatalf("DecodeRLE(%q): expected error", in)
		}
	}
}

func TestCompact(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"P":                     "P",
		"NNNPSSP":               "3NP2SP",
		"SSWWPNNNESSSENNNESSSP": "2S2WP3NE3SE3NE3SP",
	}
	for in, want := range cases {
		if got := Compact(in); got != want {
			t.Fatalf("Compact(%q)=%q want %q", in, got, want)
		}
	}
}
