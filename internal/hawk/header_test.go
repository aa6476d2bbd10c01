package hawk

import (
	"strings"
	"testing"
)

func TestParseHeader_Valid(t *testing.T) {
	h, err := ParseHeader(`Hawk id="billard", ts="1766570400", nonce="abc", hash="aGFzaA==", ext="", mac="bWFj"`)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	want := Header{ID: "billard", TS: "1766570400", Nonce: "abc", Hash: "aGFzaA==", MAC: "bWFj"}
	if h != want {
		t.Fatalf("ParseHeader = %+v, want %+v", h, want)
	}
}

func TestParseHeader_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":          ``,
		"no attributes":  `Hawk`,
		"wrong scheme":   `Basic id="a", ts="1", nonce="n", hash="h", mac="m"`,
		"missing mac":    `Hawk id="a", ts="1", nonce="n", hash="h"`,
		"missing hash":   `Hawk id="a", ts="1", nonce="n", mac="m"`,
		"unknown attr":   `Hawk id="a", ts="1", nonce="n", hash="h", mac="m", foo="x"`,
		"duplicate":      `Hawk id="a", id="b", ts="1", nonce="n", hash="h", mac="m"`,
		"unquoted":       `Hawk id=a, ts="1", nonce="n", hash="h", mac="m"`,
		"unterminated":   `Hawk id="a, ts="1"`,
		"backslash":      `Hawk id="a\", ts="1", nonce="n", hash="h", mac="m"`,
		"missing comma":  `Hawk id="a" ts="1" nonce="n" hash="h" mac="m"`,
		"control char":   "Hawk id=\"a\x01\", ts=\"1\", nonce=\"n\", hash=\"h\", mac=\"m\"",
		"oversized":      `Hawk id="` + strings.Repeat("a", maxHeaderLen) + `"`,
		"trailing junk":  `Hawk id="a", ts="1", nonce="n", hash="h", mac="m" x`,
		"empty name":     `Hawk ="a", ts="1", nonce="n", hash="h", mac="m"`,
		"nothing quoted": `Hawk id="`,
		"app attr":       `Hawk id="a", ts="1", nonce="n", hash="h", app="x", mac="m"`,
		"dlg attr":       `Hawk id="a", ts="1", nonce="n", hash="h", dlg="y", mac="m"`,
	}
	for name, v := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseHeader(v); ReasonOf(err) != ReasonMalformed {
				t.Fatalf("ParseHeader(%q) err = %v, want malformed", v, err)
			}
		})
	}
}

func TestHeader_StringRoundTrip(t *testing.T) {
	in := Header{ID: "billard", TS: "1", Nonce: "n", Hash: "h", Ext: "app-data", MAC: "m"}
	out, err := ParseHeader(in.String())
	if err != nil {
		t.Fatalf("ParseHeader(String()): %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func FuzzParseHeader(f *testing.F) {
	f.Add(`Hawk id="billard", ts="1", nonce="n", hash="h", mac="m"`)
	f.Add(`Hawk id="", ts=""`)
	f.Add(`hawk   id="a",ts="1",nonce="n",hash="h",mac="m"`)
	f.Add(`Hawk id="a",,`)

	f.Fuzz(func(t *testing.T, v string) {
		h, err := ParseHeader(v)
		if err != nil {
			return
		}
		// INVARIANT: accepted headers carry every required attribute
		if h.ID == "" || h.TS == "" || h.Nonce == "" || h.Hash == "" || h.MAC == "" {
			t.Fatalf("accepted header missing attributes: %+v", h)
		}
		// INVARIANT: rendering and reparsing is stable
		again, err := ParseHeader(h.String())
		if err != nil || again != h {
			t.Fatalf("re-parse of %q = %+v, %v", h.String(), again, err)
		}
	})
}
