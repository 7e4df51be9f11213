package transcribe

import (
	"strings"

	"github.com/samber/lo"
)

// GeneralSpecialization selects the base model without a domain suffix.
const GeneralSpecialization = "general"

// SpeechModel is one hosted model and the domain variants it offers.
type SpeechModel struct {
	ID              string
	Name            string
	Description     string
	Specializations map[string]string
	PricePerMinute  float64
}

// Models lists the hosted models offered in settings.
var Models = []SpeechModel{
	{
		ID:          "nova-2",
		Name:        "Nova-2 (Recommended)",
		Description: "Fast general-purpose model with the widest set of domain variants.",
		Specializations: map[string]string{
			GeneralSpecialization: "General",
			"meeting":             "Meeting",
			"phonecall":           "Phonecall",
			"voicemail":           "Voicemail",
			"finance":             "Finance",
			"conversationalai":    "Conversational AI",
			"video":               "Video",
			"medical":             "Medical",
			"drivethru":           "Drive-thru",
			"automotive":          "Automotive",
			"atc":                 "Air Traffic Control",
		},
		PricePerMinute: 0.0043,
	},
	{
		ID:          "nova-3",
		Name:        "Nova-3 (Premium)",
		Description: "Highest accuracy, fewer domain variants.",
		Specializations: map[string]string{
			GeneralSpecialization: "General",
			"medical":             "Medical",
		},
		PricePerMinute: 0.0059,
	},
}

// LookupModel finds a catalog entry by ID.
func LookupModel(id string) (SpeechModel, bool) {
	return lo.Find(Models, func(m SpeechModel) bool { return m.ID == id })
}

// ModelString resolves the model query value sent to the API. Domain variants
// are English-only, so any other language falls back to the base model.
func ModelString(model, specialization, language string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}

	spec := strings.ToLower(strings.TrimSpace(specialization))
	if spec == "" || spec == GeneralSpecialization {
		return model
	}
	if lang := strings.ToLower(strings.TrimSpace(language)); lang != "en" && !strings.HasPrefix(lang, "en-") {
		return model
	}

	entry, ok := LookupModel(model)
	if !ok {
		return model
	}
	if _, ok := entry.Specializations[spec]; !ok {
		return model
	}
	return model + "-" + spec
}

// EstimateCost returns the API cost of audioSeconds on model, or 0 when unpriced.
func EstimateCost(model string, audioSeconds float64) float64 {
	if entry, ok := LookupModel(model); ok {
		return entry.PricePerMinute * audioSeconds / 60
	}
	for _, m := range Models {
		if strings.HasPrefix(model, m.ID+"-") {
			return m.PricePerMinute * audioSeconds / 60
		}
	}
	return 0
}
