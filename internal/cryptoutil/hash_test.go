package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

// SHA256Hex

func TestSHA256Hex(t *testing.T) {
	// SHA-256 of the empty string
	if got, want := SHA256Hex(nil), "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"; got != want {
		t.Fatalf("SHA256Hex(empty) = %q, want %q", got, want)
	}
	if SHA256Hex([]byte("a")) == SHA256Hex([]byte("b")) {
		t.Fatal("different inputs should produce different hashes")
	}
}

// HashEqual

func TestHashEqual(t *testing.T) {
	a := SHA256Hex([]byte("one"))
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", a, a, true},
		{"different", a, SHA256Hex([]byte("two")), false},
		{"both empty", "", "", true},
		{"one empty", a, "", false},
		{"case sensitive", "abcDEF==", "ABCdef==", false},
		{"prefix", a, a[:32], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashEqual(tt.a, tt.b); got != tt.want {
				t.Fatalf("HashEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

// HMACBase64 / DigestBase64

func TestHMACBase64_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got, err := HMACBase64(SHA256, []byte("Jefe"), "what do ya want for nothing?")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := hex.DecodeString("5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843")
	if want := base64.StdEncoding.EncodeToString(raw); got != want {
		t.Fatalf("HMACBase64 = %q, want %q", got, want)
	}
}

func TestHMACBase64_SHA1(t *testing.T) {
	got, err := HMACBase64(SHA1, []byte("k"), "m")
	if err != nil {
		t.Fatal(err)
	}
	m := hmac.New(sha1.New, []byte("k"))
	m.Write([]byte("m"))
	if want := base64.StdEncoding.EncodeToString(m.Sum(nil)); got != want {
		t.Fatalf("HMACBase64(sha1) = %q, want %q", got, want)
	}
}

func TestHMACBase64_UnsupportedAlgorithm(t *testing.T) {
	if _, err := HMACBase64("md5", []byte("k"), "m"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("err = %v, want ErrUnsupportedAlgorithm", err)
	}
	if _, err := DigestBase64("sha512"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("err = %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestDigestBase64_PartsConcatenate(t *testing.T) {
	joined, err := DigestBase64(SHA256, []byte("hawk.1.payload\n"), []byte("application/json\n"), []byte("{}\n"))
	if err != nil {
		t.Fatal(err)
	}
	h := sha256.Sum256([]byte("hawk.1.payload\napplication/json\n{}\n"))
	if want := base64.StdEncoding.EncodeToString(h[:]); joined != want {
		t.Fatalf("DigestBase64 = %q, want %q", joined, want)
	}
}

// Fuzz

func FuzzSHA256Hex(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("hello"))
	f.Add([]byte{0x00})
	f.Add([]byte{0xff, 0xfe, 0xfd})

	f.Fuzz(func(t *testing.T, data []byte) {
		result := SHA256Hex(data)

		// INVARIANT: always 64 hex characters
		if len(result) != 64 {
			t.Errorf("SHA256Hex length = %d, want 64", len(result))
		}

		// INVARIANT: always lowercase hex
		if result != strings.ToLower(result) {
			t.Errorf("SHA256Hex not lowercase: %q", result)
		}

		// INVARIANT: valid hex
		if _, err := hex.DecodeString(result); err != nil {
			t.Errorf("SHA256Hex not valid hex: %v", err)
		}

		// INVARIANT: deterministic
		if SHA256Hex(data) != result {
			t.Error("SHA256Hex not deterministic")
		}

		// INVARIANT: matches stdlib directly
		h := sha256.Sum256(data)
		want := hex.EncodeToString(h[:])
		if result != want {
			t.Errorf("SHA256Hex = %q, stdlib = %q", result, want)
		}
	})
}

func FuzzHashEqual(f *testing.F) {
	f.Add("abc", "abc")
	f.Add("abc", "def")
	f.Add("", "")
	f.Add("a", "")

	f.Fuzz(func(t *testing.T, a, b string) {
		got := HashEqual(a, b)
		want := a == b

		// INVARIANT: HashEqual must agree with plain equality
		if got != want {
			t.Errorf("HashEqual(%q, %q) = %v, want %v", a, b, got, want)
		}

		// INVARIANT: symmetric
		if HashEqual(a, b) != HashEqual(b, a) {
			t.Errorf("HashEqual not symmetric for %q, %q", a, b)
		}
	})
}
