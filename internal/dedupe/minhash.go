package dedupe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

const (
	mersennePrime = (1 << 61) - 1
	// DefaultNumPerm is the signature length.
	DefaultNumPerm = 128
	// DefaultSeed fixes the permutation parameters so signatures stay
	// comparable across processes.
	DefaultSeed uint64 = 1
)

// Signature is a MinHash signature, one value per permutation.
type Signature []uint64

// MinHasher computes signatures with universal hash permutations
// (a*h(x)+b) mod (2^61-1) over a 64-bit xxhash base.
type MinHasher struct {
	a, b []uint64
}

func NewMinHasher(numPerm int, seed uint64) (*MinHasher, error) {
	if numPerm <= 0 {
		return nil, fmt.Errorf("num_perm must be positive, got %d", numPerm)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	m := &MinHasher{a: make([]uint64, numPerm), b: make([]uint64, numPerm)}
	for i := 0; i < numPerm; i++ {
		m.a[i] = 1 + rng.Uint64N(mersennePrime-1)
		m.b[i] = rng.Uint64N(mersennePrime)
	}
	return m, nil
}

func (m *MinHasher) NumPerm() int {
	return len(m.a)
}

// Signature returns nil for an empty shingle set.
func (m *MinHasher) Signature(shingles []string) Signature {
	if len(shingles) == 0 {
		return nil
	}
	sig := make(Signature, len(m.a))
	for i := range sig {
		sig[i] = mersennePrime
	}
	for _, s := range shingles {
		h := xxhash.Sum64String(s) % mersennePrime
		for i := range sig {
			hi, lo := bits.Mul64(m.a[i], h)
			v := bits.Rem64(hi, lo, mersennePrime)
			v = (v + m.b[i]) % mersennePrime
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Jaccard estimates the Jaccard similarity of the sets behind a and b.
func Jaccard(a, b Signature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	equal := 0
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / float64(len(a))
}

var errSignatureLength = errors.New("signature byte length is not a multiple of 8")

// Bytes encodes the signature as little-endian uint64s.
func (s Signature) Bytes() []byte {
	out := make([]byte, 8*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint64(out[8*i:], v)
	}
	return out
}

func DecodeSignature(b []byte) (Signature, error) {
	if len(b)%8 != 0 {
		return nil, errSignatureLength
	}
	sig := make(Signature, len(b)/8)
	for i := range sig {
		sig[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	return sig, nil
}
