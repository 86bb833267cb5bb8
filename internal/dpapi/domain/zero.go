package domain

// Zero securely overwrites a byte slice with zeros to clear key material
// from memory once it is no longer needed.
func Zero(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
