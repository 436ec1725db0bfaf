package utils

import (
	"math"
	"math/bits"
	"sort"
	"strings"
	"unicode"
)

// SaturatingAdd returns a+b, or math.MaxUint64 when the sum overflows.
func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev is the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var (
	positiveWords = map[string]bool{
		"good": true, "great": true, "bullish": true, "moon": true, "win": true,
		"love": true, "amazing": true, "strong": true, "up": true, "gain": true,
		"gains": true, "pump": true, "best": true, "excited": true, "huge": true,
		"profit": true, "winning": true, "launch": true, "alpha": true, "gem": true,
	}
	negativeWords = map[string]bool{
		"bad": true, "bearish": true, "dump": true, "rug": true, "scam": true,
		"loss": true, "lose": true, "down": true, "weak": true, "hate": true,
		"worst": true, "crash": true, "fear": true, "sell": true, "rekt": true,
		"fud": true, "dead": true, "exploit": true, "hack": true, "fail": true,
	}
)

// Tokenize lowercases text and splits it into words, dropping punctuation.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '$' && r != '#'
	})
}

// Polarity scores text in [-1, 1] from a small crypto-flavoured lexicon.
// Text with no lexicon words scores 0.
func Polarity(text string) float64 {
	var pos, neg int
	for _, w := range Tokenize(text) {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// VocabDiversity is the ratio of distinct words to total words.
func VocabDiversity(texts []string) float64 {
	seen := make(map[string]struct{})
	total := 0
	for _, t := range texts {
		for _, w := range strings.Fields(t) {
			seen[w] = struct{}{}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(len(seen)) / float64(total)
}

// CommonPhrases returns the n most frequent word pairs that occur more than once.
func CommonPhrases(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, t := range texts {
		words := Tokenize(t)
		for i := 0; i+1 < len(words); i++ {
			counts[words[i]+" "+words[i+1]]++
		}
	}

	phrases := make([]string, 0, len(counts))
	for p, c := range counts {
		if c > 1 {
			phrases = append(phrases, p)
		}
	}
	sort.Slice(phrases, func(i, j int) bool {
		if counts[phrases[i]] != counts[phrases[j]] {
			return counts[phrases[i]] > counts[phrases[j]]
		}
		return phrases[i] < phrases[j]
	})
	if len(phrases) > n {
		phrases = phrases[:n]
	}
	return phrases
}
