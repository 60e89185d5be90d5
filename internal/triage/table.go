package triage

import "github.com/ashharzawarsyed/alertx-sub004/internal/models"

// Entry one phrase of the severity table
type Entry struct {
	Phrase string
	Tier   models.Tier
	Weight float64
}

// DefaultTable phrases dispatchers triage on. A longer phrase claims its
// words for weight, but a contained phrase of a higher tier still sets the
// tier ("minor burn" scores like a burn with the qualifier's weight).
var DefaultTable = []Entry{
	// critical
	{"not breathing", models.TierCritical, 8},
	{"stopped breathing", models.TierCritical, 8},
	{"no pulse", models.TierCritical, 9},
	{"cardiac arrest", models.TierCritical, 9},
	{"heart attack", models.TierCritical, 8},
	{"chest pain", models.TierCritical, 6},
	{"difficulty breathing", models.TierCritical, 6},
	{"stroke", models.TierCritical, 7},
	{"face drooping", models.TierCritical, 6},
	{"slurred speech", models.TierCritical, 5},
	{"unconscious", models.TierCritical, 8},
	{"unresponsive", models.TierCritical, 8},
	{"severe bleeding", models.TierCritical, 7},
	{"choking", models.TierCritical, 7},
	{"drowning", models.TierCritical, 8},
	{"seizure", models.TierCritical, 6},
	{"anaphylaxis", models.TierCritical, 8},
	{"overdose", models.TierCritical, 7},
	{"gunshot", models.TierCritical, 8},
	{"stab wound", models.TierCritical, 7},

	// high
	{"shortness of breath", models.TierHigh, 5},
	{"head injury", models.TierHigh, 5},
	{"vomiting blood", models.TierHigh, 5},
	{"broken bone", models.TierHigh, 4},
	{"fracture", models.TierHigh, 4},
	{"deep cut", models.TierHigh, 4},
	{"concussion", models.TierHigh, 4},
	{"severe pain", models.TierHigh, 4},
	{"high fever", models.TierHigh, 4},
	{"allergic reaction", models.TierHigh, 4},
	{"burn", models.TierHigh, 4},
	{"confusion", models.TierHigh, 4},
	{"fainted", models.TierHigh, 4},

	// medium
	{"abdominal pain", models.TierMedium, 3},
	{"bleeding", models.TierMedium, 3},
	{"vomiting", models.TierMedium, 2},
	{"dizziness", models.TierMedium, 2},
	{"dizzy", models.TierMedium, 2},
	{"fever", models.TierMedium, 2},
	{"sprain", models.TierMedium, 2},
	{"dehydration", models.TierMedium, 2},
	{"migraine", models.TierMedium, 2},

	// low
	{"minor cut", models.TierLow, 1},
	{"minor burn", models.TierLow, 1},
	{"mild fever", models.TierLow, 1},
	{"cold symptoms", models.TierLow, 1},
	{"sore throat", models.TierLow, 1},
	{"ear pain", models.TierLow, 1},
	{"headache", models.TierLow, 1},
	{"rash", models.TierLow, 1},
	{"cough", models.TierLow, 1},
	{"nausea", models.TierLow, 1},
}

// tierFloor minimum score for a tier so score and tier never disagree
func tierFloor(t models.Tier) float64 {
	switch t {
	case models.TierCritical:
		return 8
	case models.TierHigh:
		return 5
	case models.TierMedium:
		return 3
	case models.TierLow:
		return 1
	default:
		return 0
	}
}
