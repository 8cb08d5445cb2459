package blockio

// IsZero reports whether every byte in b is zero. An empty slice is
// vacuously zero.
func IsZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
