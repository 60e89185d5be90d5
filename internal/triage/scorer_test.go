package triage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

func TestScore_ChestPainAndBreathingIsCritical(t *testing.T) {
	s := NewScorer(nil)

	a := s.Score("Severe chest pain and difficulty breathing", nil)

	assert.Equal(t, models.TierCritical, a.Tier)
	assert.Equal(t, 10.0, a.Score)
	assert.Equal(t, []string{"chest pain", "difficulty breathing"}, a.MatchedKeywords)
	// 20 + 15*2 + 5*2
	assert.Equal(t, 60, a.Confidence)
	assert.False(t, a.Bypassed)
}

func TestScore_Deterministic(t *testing.T) {
	s := NewScorer(nil)
	text := "patient fainted, has a high fever and is vomiting"

	first := s.Score(text, []string{"dizzy"})
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, s.Score(text, []string{"dizzy"}))
	}
}

func TestScore_UnrecognizedInput(t *testing.T) {
	s := NewScorer(nil)

	tests := []struct {
		name     string
		text     string
		keywords []string
	}{
		{"empty", "", nil},
		{"whitespace", "   \t\n", nil},
		{"unknown words", "my cat is orange", []string{"purple"}},
		{"punctuation only", "?!...", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Score(tt.text, tt.keywords)
			assert.Equal(t, models.TierLow, a.Tier)
			assert.Equal(t, 0.0, a.Score)
			assert.Equal(t, 0, a.Confidence)
			assert.Empty(t, a.MatchedKeywords)
		})
	}
}

func TestScore_HighestTierWins(t *testing.T) {
	s := NewScorer(nil)

	// one critical, several lower-tier matches
	a := s.Score("headache, rash, cough and then a seizure", nil)
	assert.Equal(t, models.TierCritical, a.Tier)
	assert.GreaterOrEqual(t, a.Score, 8.0)
}

func TestScore_TierFloors(t *testing.T) {
	s := NewScorer(nil)

	tests := []struct {
		text string
		tier models.Tier
		min  float64
	}{
		{"seizure", models.TierCritical, 8},
		{"fracture", models.TierHigh, 5},
		{"sprain", models.TierMedium, 3},
		{"rash", models.TierLow, 1},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a := s.Score(tt.text, nil)
			assert.Equal(t, tt.tier, a.Tier)
			assert.GreaterOrEqual(t, a.Score, tt.min)
			assert.LessOrEqual(t, a.Score, MaxScore)
		})
	}
}

func TestScore_WordBoundaries(t *testing.T) {
	s := NewScorer(nil)

	// "burnt" and "rashly" are not "burn" and "rash"
	a := s.Score("burnt toast, acted rashly", nil)
	assert.Empty(t, a.MatchedKeywords)
}

func TestScore_LongerPhraseClaimsWords(t *testing.T) {
	s := NewScorer(nil)

	a := s.Score("minor cut on the hand", nil)
	assert.Equal(t, models.TierLow, a.Tier)
	assert.Equal(t, []string{"minor cut"}, a.MatchedKeywords)
	assert.Equal(t, 1.0, a.Score)

	a = s.Score("severe bleeding from the leg", nil)
	assert.Equal(t, models.TierCritical, a.Tier)
	assert.Equal(t, []string{"severe bleeding"}, a.MatchedKeywords)
}

func TestScore_ContainedHigherTierIsNeverSuppressed(t *testing.T) {
	s := NewScorer(nil)

	tests := []struct {
		text       string
		tier       models.Tier
		score      float64
		confidence int
		matched    []string
	}{
		{"minor burn on the hand", models.TierHigh, 5, 40, []string{"burn", "minor burn"}},
		{"mild fever since noon", models.TierMedium, 3, 40, []string{"fever", "mild fever"}},
		{"severe bleeding from the leg", models.TierCritical, 0, 0, []string{"severe bleeding"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a := s.Score(tt.text, nil)
			assert.Equal(t, tt.tier, a.Tier)
			assert.Equal(t, tt.matched, a.MatchedKeywords)
			if tt.score > 0 {
				assert.Equal(t, tt.score, a.Score)
				assert.Equal(t, tt.confidence, a.Confidence)
			}
		})
	}

	// the higher tier also wins when it arrives as a structured keyword
	a := s.Score("", []string{"minor burn"})
	assert.Equal(t, models.TierHigh, a.Tier)
}

func TestScore_KeywordsAndTextCountOnce(t *testing.T) {
	s := NewScorer(nil)

	a := s.Score("fever fever FEVER", []string{"Fever", "fever"})
	assert.Equal(t, []string{"fever"}, a.MatchedKeywords)
	assert.Equal(t, models.TierMedium, a.Tier)
	assert.Equal(t, 3.0, a.Score)
	assert.Equal(t, 35, a.Confidence)
}

func TestScore_KeywordsDoNotSpanEachOther(t *testing.T) {
	s := NewScorer(nil)

	// "chest" + "pain" as separate keywords is not the phrase "chest pain"
	a := s.Score("", []string{"chest", "pain"})
	assert.Empty(t, a.MatchedKeywords)

	a = s.Score("", []string{"chest pain"})
	assert.Equal(t, models.TierCritical, a.Tier)
}

func TestScore_ConfidenceCapped(t *testing.T) {
	s := NewScorer(nil)

	a := s.Score("unconscious, not breathing, no pulse, choking, seizure, overdose", nil)
	assert.Equal(t, maxKeywordConfidence, a.Confidence)
	assert.Equal(t, MaxScore, a.Score)
}

func TestBypass(t *testing.T) {
	a := Bypass()
	assert.Equal(t, models.TierCritical, a.Tier)
	assert.Equal(t, MaxScore, a.Score)
	assert.Equal(t, MaxConfidence, a.Confidence)
	assert.True(t, a.Bypassed)
	assert.Empty(t, a.MatchedKeywords)
}

func TestNewScorer_CustomTable(t *testing.T) {
	s := NewScorer([]Entry{
		{Phrase: "  Snake   Bite ", Tier: models.TierHigh, Weight: 6},
		{Phrase: "snake bite", Tier: models.TierLow, Weight: 1},
		{Phrase: "", Tier: models.TierCritical, Weight: 9},
	})

	require.Len(t, s.entries, 1)
	a := s.Score("a snake-bite on the ankle", nil)
	assert.Equal(t, models.TierHigh, a.Tier)
	assert.Equal(t, 6.0, a.Score)
}

func TestScore_Concurrent(t *testing.T) {
	s := NewScorer(nil)
	want := s.Score("stroke with slurred speech", nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, s.Score("stroke with slurred speech", nil))
		}()
	}
	wg.Wait()
}
