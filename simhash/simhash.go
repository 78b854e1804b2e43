// Package simhash computes 64-bit locality-sensitive fingerprints. Similar
// inputs produce fingerprints with a small Hamming distance.
package simhash

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// shingleSize is the number of consecutive tags hashed together by Markup.
const shingleSize = 3

// Sum returns the SimHash of tokens. Every token is hashed with FNV-1a and
// votes +1 or -1 on each bit; bits with a positive tally are set.
// No tokens yields 0.
func Sum(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var tally [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := range tally {
			if sum>>uint(i)&1 == 1 {
				tally[i]++
			} else {
				tally[i]--
			}
		}
	}

	var fp uint64
	for i, v := range tally {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Text fingerprints the whitespace-separated words of s.
func Text(s string) uint64 {
	return Sum(strings.Fields(s))
}

// Markup fingerprints the tag structure of an HTML document. Only start tag
// names count, grouped into overlapping shingles, so text and attribute
// changes leave the fingerprint untouched.
func Markup(markup string) uint64 {
	tags := startTags(markup)
	if len(tags) < shingleSize {
		return Sum(tags)
	}

	shingles := make([]string, 0, len(tags)-shingleSize+1)
	for i := 0; i+shingleSize <= len(tags); i++ {
		shingles = append(shingles, strings.Join(tags[i:i+shingleSize], ">"))
	}
	return Sum(shingles)
}

func startTags(markup string) []string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b differ in at most threshold bits.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Hex renders fp as 16 lowercase hex digits, or "" for the zero fingerprint.
func Hex(fp uint64) string {
	if fp == 0 {
		return ""
	}
	return fmt.Sprintf("%016x", fp)
}

// ParseHex is the inverse of Hex.
func ParseHex(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	fp, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("simhash: parse %q: %w", s, err)
	}
	return fp, nil
}
