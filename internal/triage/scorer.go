package triage

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

const (
	MaxScore      = 10.0
	MaxConfidence = 100
	// keyword evidence alone never reaches full certainty
	maxKeywordConfidence = 95
)

// Assessment result of scoring one report
type Assessment struct {
	Tier            models.Tier `json:"tier"`
	Score           float64     `json:"score"`
	Confidence      int         `json:"confidence"`
	MatchedKeywords []string    `json:"matched_keywords"`
	Bypassed        bool        `json:"bypassed"`
}

type compiledEntry struct {
	Entry
	tokens []string
}

// Scorer keyword/phrase severity classifier. Safe for concurrent use; holds no mutable state.
type Scorer struct {
	entries []compiledEntry
}

// NewScorer compiles table; nil or empty uses DefaultTable
func NewScorer(table []Entry) *Scorer {
	if len(table) == 0 {
		table = DefaultTable
	}

	entries := make([]compiledEntry, 0, len(table))
	seen := make(map[string]bool, len(table))
	for _, e := range table {
		tokens := tokenize(e.Phrase)
		key := strings.Join(tokens, " ")
		if len(tokens) == 0 || seen[key] {
			continue
		}
		seen[key] = true
		e.Phrase = key
		entries = append(entries, compiledEntry{Entry: e, tokens: tokens})
	}

	// longest phrases first so they claim their words before contained phrases
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].tokens) > len(entries[j].tokens)
	})

	return &Scorer{entries: entries}
}

// Bypass the panic-button result. Never touches the keyword table.
func Bypass() Assessment {
	return Assessment{
		Tier:            models.TierCritical,
		Score:           MaxScore,
		Confidence:      MaxConfidence,
		MatchedKeywords: []string{},
		Bypassed:        true,
	}
}

// Score classifies free text plus structured keywords. Unrecognized input
// yields tier low with score and confidence 0; it never fails.
func (s *Scorer) Score(symptomText string, keywords []string) Assessment {
	segments := make([][]string, 0, len(keywords)+1)
	segments = append(segments, tokenize(symptomText))
	for _, k := range keywords {
		segments = append(segments, tokenize(k))
	}

	matched := make(map[int]bool)
	for _, seg := range segments {
		consumed := make([]bool, len(seg))
		for i, e := range s.entries {
			if matchInto(seg, consumed, e.tokens) {
				matched[i] = true
			}
		}
	}

	if len(matched) == 0 {
		return Assessment{
			Tier:            models.TierLow,
			Score:           0,
			Confidence:      0,
			MatchedKeywords: []string{},
		}
	}

	tier := models.TierLow
	sum := 0.0
	multiWord := 0
	phrases := make([]string, 0, len(matched))
	for i := range matched {
		e := s.entries[i]
		sum += e.Weight
		if e.Tier.Rank() > tier.Rank() {
			tier = e.Tier
		}
		if len(e.tokens) > 1 {
			multiWord++
		}
		phrases = append(phrases, e.Phrase)
	}

	// a qualifier lowers weight, never the tier: a contained phrase of a
	// higher tier still sets it ("minor burn" is still a burn)
	for i, e := range s.entries {
		if matched[i] || e.Tier.Rank() <= tier.Rank() {
			continue
		}
		if occursIn(segments, e.tokens) {
			tier = e.Tier
			phrases = append(phrases, e.Phrase)
		}
	}
	sort.Strings(phrases)

	score := math.Min(sum, MaxScore)
	if floor := tierFloor(tier); score < floor {
		score = floor
	}
	score = math.Round(score*10) / 10

	confidence := 20 + 15*len(matched) + 5*multiWord
	if confidence > maxKeywordConfidence {
		confidence = maxKeywordConfidence
	}

	return Assessment{
		Tier:            tier,
		Score:           score,
		Confidence:      confidence,
		MatchedKeywords: phrases,
	}
}

// matchInto finds phrase in seg over unconsumed words and marks them consumed
func matchInto(seg []string, consumed []bool, phrase []string) bool {
	found := false
	for start := 0; start+len(phrase) <= len(seg); start++ {
		ok := true
		for j, tok := range phrase {
			if consumed[start+j] || seg[start+j] != tok {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for j := range phrase {
			consumed[start+j] = true
		}
		found = true
		start += len(phrase) - 1
	}
	return found
}

func occursIn(segments [][]string, phrase []string) bool {
	for _, seg := range segments {
		if matchInto(seg, make([]bool, len(seg)), phrase) {
			return true
		}
	}
	return false
}

// tokenize lower-cases and splits on anything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
