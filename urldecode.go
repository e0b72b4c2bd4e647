package main

// percentDecode decodes %XX escapes. An escape that is not followed by two
// hex digits is dropped together with the bytes it consumed; peers rely on
// trackers being lenient here, so nothing is reported.
func percentDecode(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '%' {
			out = append(out, b[i])
			continue
		}
		if i+2 >= len(b) {
			break
		}
		hi, okHi := unhex(b[i+1])
		lo, okLo := unhex(b[i+2])
		if okHi && okLo {
			out = append(out, hi<<4|lo)
		}
		i += 2
	}
	return out
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
