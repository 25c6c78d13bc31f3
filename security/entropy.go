package security

import "math"

// EntropyThreshold is the bits-per-byte level above which a segment is
// treated as encoded rather than natural text. English prose sits
// around 3.0-4.5; base64 around 5.5-6.0.
const EntropyThreshold = 4.8

// ShannonEntropy returns the entropy of data in bits per byte.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for _, b := range data {
		freq[b]++
	}
	length := float64(len(data))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// IsHighEntropy reports whether data exceeds EntropyThreshold.
func IsHighEntropy(data []byte) bool {
	return ShannonEntropy(data) > EntropyThreshold
}
