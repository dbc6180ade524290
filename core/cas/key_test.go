package cas

import (
	"encoding/hex"
	"testing"

	"github.com/zeebo/blake3"
)

func TestKey(t *testing.T) {
	type opts struct {
		Mode   string `json:"mode"`
		Author string `json:"author"`
	}
	base, err := Key([]byte("orig"), []byte("rev"), opts{"rebuild", "A"})
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if !isValidHash(base) {
		t.Fatalf("Key returned %q", base)
	}

	tests := []struct {
		name     string
		original string
		revised  string
		options  opts
		same     bool
	}{
		{"identical request", "orig", "rev", opts{"rebuild", "A"}, true},
		{"other mode", "orig", "rev", opts{"inplace", "A"}, false},
		{"other author", "orig", "rev", opts{"rebuild", "B"}, false},
		{"swapped documents", "rev", "orig", opts{"rebuild", "A"}, false},
		{"bytes moved across boundary", "ori", "grev", opts{"rebuild", "A"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Key([]byte(tt.original), []byte(tt.revised), tt.options)
			if err != nil {
				t.Fatal(err)
			}
			if (got == base) != tt.same {
				t.Errorf("Key = %s, base %s, want same=%v", got, base, tt.same)
			}
		})
	}
}

func TestKeyUnmarshalableOptions(t *testing.T) {
	if _, err := Key(nil, nil, func() {}); err == nil {
		t.Error("expected error for options that cannot be marshalled")
	}
}

func TestHash(t *testing.T) {
	data := []byte("Hello, redline!")
	sum := blake3.Sum256(data)
	if got, want := Hash(data), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Hash = %s, want %s", got, want)
	}
	if len(Hash(nil)) != 64 {
		t.Error("hash of empty input should still be 64 hex characters")
	}
}
