package domain

import (
	"sort"
	"strings"
	"time"
)

// TimestampLayout is the only accepted report timestamp format.
const TimestampLayout = "2006-01-02T15:04:05Z"

// TextSimilarity scores two strings on a 0-100 scale using a case-insensitive
// token-set ratio. Word order and repeated words do not affect the score.
// Either side being blank yields 0.
func TextSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}

	// One token set contains the other.
	if len(common) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(common, " ")
	combinedA := joinNonEmpty(sect, strings.Join(onlyA, " "))
	combinedB := joinNonEmpty(sect, strings.Join(onlyB, " "))

	best := indelRatio(combinedA, combinedB)
	if sect != "" {
		best = max(best, indelRatio(sect, combinedA), indelRatio(sect, combinedB))
	}
	return best
}

// TimeWithinWindow reports whether two timestamps lie within window of each
// other. Unparsable input yields false.
func TimeWithinWindow(t1, t2 string, window time.Duration) bool {
	a, err := time.Parse(TimestampLayout, t1)
	if err != nil {
		return false
	}
	b, err := time.Parse(TimestampLayout, t2)
	if err != nil {
		return false
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

// indelRatio is the normalized insertion/deletion similarity of two strings,
// 100 * 2*LCS / (len(a)+len(b)), computed over runes.
func indelRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	return 100 * float64(2*lcsLength(ra, rb)) / float64(total)
}

func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
