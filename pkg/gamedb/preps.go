package gamedb

import "github.com/kruton/etamoo/pkg/value"

// PrepSpec identifies a verb's preposition specifier: a preposition group
// index, or one of the Any/None sentinels.
type PrepSpec int

const (
	PrepAny  PrepSpec = -2
	PrepNone PrepSpec = -1
)

// prepGroups lists the preposition groups in their canonical order. Each
// group is a set of synonymous phrases; the first phrase is the display
// form.
var prepGroups = [][]string{
	{"with", "using"},
	{"at", "to"},
	{"in front of"},
	{"in", "inside", "into"},
	{"on top of", "on", "onto", "upon"},
	{"out of", "from inside", "from"},
	{"over"},
	{"through"},
	{"under", "underneath", "beneath"},
	{"behind"},
	{"beside"},
	{"for", "about"},
	{"is"},
	{"as"},
	{"off", "off of"},
}

func (p PrepSpec) String() string {
	switch {
	case p == PrepAny:
		return "any"
	case p == PrepNone:
		return "none"
	case int(p) >= 0 && int(p) < len(prepGroups):
		return prepGroups[p][0]
	default:
		return "none"
	}
}

// ParsePrepSpec resolves a textual preposition specifier ("any", "none", or
// any phrase of a group) to its PrepSpec.
func ParsePrepSpec(s string) (PrepSpec, bool) {
	folded := value.Fold(s)
	switch folded {
	case "any":
		return PrepAny, true
	case "none":
		return PrepNone, true
	}
	for i, group := range prepGroups {
		for _, phrase := range group {
			if folded == phrase {
				return PrepSpec(i), true
			}
		}
	}
	return PrepNone, false
}

// FindPrep scans a command's words for the longest preposition phrase.
// It returns the group index, the word position, and the phrase length in
// words, or ok=false when no word sequence is a preposition.
func FindPrep(words []string) (spec PrepSpec, at, length int, ok bool) {
	for i := range words {
		best := 0
		bestSpec := PrepNone
		for gi, group := range prepGroups {
			for _, phrase := range group {
				n := matchPhrase(words[i:], phrase)
				if n > best {
					best = n
					bestSpec = PrepSpec(gi)
				}
			}
		}
		if best > 0 {
			return bestSpec, i, best, true
		}
	}
	return PrepNone, 0, 0, false
}

// matchPhrase reports how many words of a multi-word phrase match at the
// start of words, or 0.
func matchPhrase(words []string, phrase string) int {
	parts := splitPhrase(phrase)
	if len(words) < len(parts) {
		return 0
	}
	for i, p := range parts {
		if value.Fold(words[i]) != p {
			return 0
		}
	}
	return len(parts)
}

func splitPhrase(phrase string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(phrase); i++ {
		if i == len(phrase) || phrase[i] == ' ' {
			if i > start {
				parts = append(parts, phrase[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
