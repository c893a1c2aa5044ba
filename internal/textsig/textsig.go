// Package textsig holds the text fingerprinting used to deduplicate
// items and cluster them into incidents: normalized titles, canonical
// URLs, 64-bit SimHash and token-set similarity.
package textsig

import (
	"encoding/binary"
	"math/bits"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	titlePunctRe = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	titleWSRe    = regexp.MustCompile(`\s+`)
	tokenRe      = regexp.MustCompile(`[a-z0-9]+`)
)

// NormalizeTitle casefolds, strips punctuation and collapses whitespace.
// Idempotent: NormalizeTitle(NormalizeTitle(s)) == NormalizeTitle(s).
func NormalizeTitle(title string) string {
	normalized := strings.ToLower(strings.TrimSpace(title))
	normalized = titlePunctRe.ReplaceAllString(normalized, " ")
	normalized = titleWSRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Tokens returns the lowercase [a-z0-9]+ tokens of a text.
func Tokens(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// SimHash64 computes the 64-bit SimHash of a text: distinct tokens are
// weighted by count, each token hashed with keyless blake2b-8, and the
// output bit is set where the weighted bit sum is positive.
func SimHash64(text string) uint64 {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return 0
	}

	weights := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		weights[tok]++
	}

	var vector [64]int
	for tok, weight := range weights {
		h, _ := blake2b.New(8, nil)
		h.Write([]byte(tok))
		tokenHash := binary.BigEndian.Uint64(h.Sum(nil))
		for bit := 0; bit < 64; bit++ {
			if tokenHash&(1<<uint(bit)) != 0 {
				vector[bit] += weight
			} else {
				vector[bit] -= weight
			}
		}
	}

	var result uint64
	for bit, value := range vector {
		if value > 0 {
			result |= 1 << uint(bit)
		}
	}
	return result
}

// HammingDistance is the population count of the XOR of two SimHashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// SimHashToStored reinterprets an unsigned SimHash as the signed value
// persisted in the store (values >= 2^63 wrap negative).
func SimHashToStored(v uint64) int64 { return int64(v) }

// StoredToSimHash is the inverse of SimHashToStored.
func StoredToSimHash(v int64) uint64 { return uint64(v) }

// Bucket is the top 16 bits of a SimHash, used to prefilter cluster
// candidates.
func Bucket(v uint64) uint16 { return uint16(v >> 48) }

// TokenJaccard computes the token-set Jaccard similarity of two texts.
func TokenJaccard(a, b string) float64 {
	aTokens := tokenSet(a)
	bTokens := tokenSet(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}
	inter := 0
	for tok := range aTokens {
		if _, ok := bTokens[tok]; ok {
			inter++
		}
	}
	union := len(aTokens) + len(bTokens) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

// TokenSignature joins the first n tokens of a text; empty when the
// text has none.
func TokenSignature(text string, n int) string {
	tokens := Tokens(text)
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return strings.Join(tokens, " ")
}
