// rng.go implements the seeded noise source for the preview backend.
//
// The generator is a fixed splitmix64 so that identical seeds produce
// identical noise streams on every platform and in every build. Depending on
// a library generator here would tie the byte-for-byte reproducibility
// contract to someone else's stream stability.
package sdruntime

// noiseSource is a deterministic pseudo-random stream seeded from a
// generation seed. Not safe for concurrent use; each generation builds
// its own.
type noiseSource struct {
	state uint64
}

func newNoiseSource(seed int64) *noiseSource {
	// Offset so that seed 0 still produces a non-trivial stream.
	return &noiseSource{state: uint64(seed) + 0x9E3779B97F4A7C15}
}

// next returns the next 64-bit value (splitmix64 step).
func (n *noiseSource) next() uint64 {
	n.state += 0x9E3779B97F4A7C15
	z := n.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// float64 returns a value in [0, 1) with 53 bits of precision.
func (n *noiseSource) float64() float64 {
	return float64(n.next()>>11) / (1 << 53)
}

// normal approximates a standard normal sample by summing twelve uniforms
// (Irwin-Hall). Good enough for latent noise and fully deterministic,
// unlike ziggurat implementations that vary between library versions.
func (n *noiseSource) normal() float64 {
	sum := 0.0
	for i := 0; i < 12; i++ {
		sum += n.float64()
	}
	return sum - 6.0
}

// hash64 mixes an arbitrary 64-bit key through the splitmix64 finalizer.
// Used to derive position-dependent values without consuming the stream.
func hash64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
