package dedupe

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultThreshold is the Jaccard similarity the banding is tuned for.
const DefaultThreshold = 0.8

const integrationSteps = 1000

// OptimalBands returns the band count b and rows per band r (b*r <= numPerm)
// that minimise the equally weighted false positive and false negative
// probability mass around threshold.
func OptimalBands(threshold float64, numPerm int) (int, int) {
	bestErr := math.Inf(1)
	bestB, bestR := 1, numPerm
	for b := 1; b <= numPerm; b++ {
		for r := 1; r <= numPerm/b; r++ {
			fp := falsePositive(threshold, b, r)
			fn := falseNegative(threshold, b, r)
			if e := 0.5*fp + 0.5*fn; e < bestErr {
				bestErr, bestB, bestR = e, b, r
			}
		}
	}
	return bestB, bestR
}

// candidateProbability is the chance that two sets with Jaccard s share at
// least one band.
func candidateProbability(s float64, b, r int) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(r)), float64(b))
}

func falsePositive(t float64, b, r int) float64 {
	return integrate(func(s float64) float64 { return candidateProbability(s, b, r) }, 0, t)
}

func falseNegative(t float64, b, r int) float64 {
	return integrate(func(s float64) float64 { return 1 - candidateProbability(s, b, r) }, t, 1)
}

// integrate uses the composite Simpson rule.
func integrate(f func(float64) float64, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	h := (hi - lo) / integrationSteps
	sum := f(lo) + f(hi)
	for i := 1; i < integrationSteps; i++ {
		x := lo + float64(i)*h
		if i%2 == 1 {
			sum += 4 * f(x)
		} else {
			sum += 2 * f(x)
		}
	}
	return sum * h / 3
}

// LSH buckets signatures by band so that similar signatures collide in at
// least one band. It is safe for concurrent use.
type LSH struct {
	threshold float64
	numPerm   int
	bands     int
	rows      int

	mu      sync.RWMutex
	buckets []map[uint64][]int64
	ids     map[int64]struct{}
}

func NewLSH(threshold float64, numPerm int) (*LSH, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("lsh threshold must be in (0,1), got %v", threshold)
	}
	if numPerm <= 0 {
		return nil, fmt.Errorf("num_perm must be positive, got %d", numPerm)
	}
	b, r := OptimalBands(threshold, numPerm)
	l := &LSH{
		threshold: threshold,
		numPerm:   numPerm,
		bands:     b,
		rows:      r,
		buckets:   make([]map[uint64][]int64, b),
		ids:       make(map[int64]struct{}),
	}
	for i := range l.buckets {
		l.buckets[i] = make(map[uint64][]int64)
	}
	return l, nil
}

// Params returns the band count and rows per band.
func (l *LSH) Params() (int, int) {
	return l.bands, l.rows
}

func (l *LSH) matches(threshold float64, numPerm int) bool {
	return l.threshold == threshold && l.numPerm == numPerm
}

func (l *LSH) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// Insert adds id under every band key of sig. Inserting a known id is a no-op.
func (l *LSH) Insert(id int64, sig Signature) error {
	if len(sig) != l.numPerm {
		return fmt.Errorf("signature has %d values, index expects %d", len(sig), l.numPerm)
	}
	keys := l.bandKeys(sig)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; ok {
		return nil
	}
	l.ids[id] = struct{}{}
	for band, key := range keys {
		l.buckets[band][key] = append(l.buckets[band][key], id)
	}
	return nil
}

// Query returns the ids sharing at least one band with sig, ascending.
func (l *LSH) Query(sig Signature) []int64 {
	if len(sig) != l.numPerm {
		return nil
	}
	keys := l.bandKeys(sig)

	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []int64
	for band, key := range keys {
		for _, id := range l.buckets[band][key] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (l *LSH) bandKeys(sig Signature) []uint64 {
	keys := make([]uint64, l.bands)
	buf := make([]byte, 8*l.rows)
	for band := 0; band < l.bands; band++ {
		for i := 0; i < l.rows; i++ {
			binary.LittleEndian.PutUint64(buf[8*i:], sig[band*l.rows+i])
		}
		keys[band] = xxhash.Sum64(buf)
	}
	return keys
}
