package main

import (
	"bytes"
	"testing"
)

func TestPercentDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"plain text", "abcdefghijklmn123456", []byte("abcdefghijklmn123456")},
		{"empty", "", []byte{}},
		{"single escape", "%41", []byte("A")},
		{"lowercase hex", "%ab%cd", []byte{0xab, 0xcd}},
		{"uppercase hex", "%AB%CD", []byte{0xab, 0xcd}},
		{"mixed", "a%20b%2Fc", []byte("a b/c")},
		{"binary bytes", "%00%ff%7F", []byte{0x00, 0xff, 0x7f}},
		{"plus is literal", "a+b", []byte("a+b")},
		{"invalid escape dropped", "a%zzb", []byte("ab")},
		{"half invalid escape dropped", "a%4gb", []byte("ab")},
		{"truncated escape at end", "ab%4", []byte("ab")},
		{"lone percent at end", "ab%", []byte("ab")},
		{"escaped percent", "%2541", []byte("%41")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := percentDecode([]byte(tt.input))
			if !bytes.Equal(got, tt.want) {
				t.Errorf("percentDecode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPercentDecode_InfoHash(t *testing.T) {
	// A typical client-encoded info hash: unreserved bytes raw, the rest escaped.
	encoded := "%124Vx%9a%bc%de%f0%12%34%56%78%9a%bc%de%f0%12%34%56%78"
	got := percentDecode([]byte(encoded))
	want := []byte{
		0x12, '4', 'V', 'x', 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34,
		0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("percentDecode() = %x, want %x", got, want)
	}
	if len(got) != len(HashID{}) {
		t.Errorf("len = %d, want 20", len(got))
	}
}
