package sdruntime

import (
	"crypto/rand"
	"encoding/binary"
)

// RandomSeed draws a seed uniformly from [0, MaxSeed]. Four bytes from
// crypto/rand cover the 32-bit seed space exactly, so no range correction
// is needed.
func RandomSeed() int64 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		// A fixed seed keeps generation working; it just stops varying.
		return 42
	}
	return int64(binary.LittleEndian.Uint32(buf[:]))
}
