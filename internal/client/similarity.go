package client

// Scorer rates how alike two normalized search keys are, from 0 (nothing
// in common) to 1 (identical). It is pluggable so the algorithm can change
// without touching the registry.
type Scorer interface {
	Score(a, b string) float64
}

// EditDistanceScorer scores by Levenshtein distance normalized over the
// longer key.
type EditDistanceScorer struct{}

func (EditDistanceScorer) Score(a, b string) float64 {
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}

	if longest == 0 {
		return 1
	}

	return 1 - float64(editDistance(ra, rb))/float64(longest)
}

// editDistance is the classic two-row Levenshtein computation.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}

	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i

		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
