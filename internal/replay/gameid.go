package replay

// GameID turns an object reference into a four character object id such as
// "h001". Four-element references hold the id bytes in reverse order; two-element
// references carry the id packed big-endian in the second element.
func GameID(ref []int64) (string, bool) {
	switch len(ref) {
	case 4:
		out := make([]byte, 0, 4)
		for i := len(ref) - 1; i >= 0; i-- {
			if c := ref[i]; c >= 0 && c < 256 && isWordChar(byte(c)) {
				out = append(out, byte(c))
			}
		}
		if len(out) != 4 {
			return "", false
		}
		return string(out), true

	case 2:
		value := ref[1]
		var out []byte
		for value > 8 {
			out = append([]byte{byte(value % 256)}, out...)
			value /= 256
		}
		if len(out) != 4 {
			return "", false
		}
		return string(out), true
	}

	return "", false
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

// IDs decodes every valid reference, skipping the invalid ones.
func IDs(refs ...[]int64) []string {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if id, ok := GameID(ref); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
