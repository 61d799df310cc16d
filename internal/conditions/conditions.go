package conditions

// Closed comorbidity vocabulary used by the diagnostic model.
// The order is the column order in the patients sheet and the
// feature order sent to the prediction API, so it must not change
// without retraining/re-exporting both.
var vocabulary = []string{
	"Diabetes",
	"Hypertension",
	"Asthma",
	"COPD",
	"Chronic Kidney Disease",
	"Heart Disease",
	"Liver Disease",
	"Cancer",
	"Stroke",
	"Obesity",
}

// Vocabulary returns the known condition names in canonical order.
// Callers must not mutate the returned slice.
func Vocabulary() []string {
	return vocabulary
}

// IsKnown reports whether name belongs to the closed vocabulary.
func IsKnown(name string) bool {
	for _, v := range vocabulary {
		if v == name {
			return true
		}
	}
	return false
}

// Encode maps a selection of condition names to a one-hot presence map
// over the full vocabulary: 1 when selected, 0 otherwise.
//
// Names outside the vocabulary are silently ignored. This mirrors how the
// intake form has always behaved; whether dropped names should instead be
// rejected is an open product question, so the leniency is kept as-is.
func Encode(selected []string) map[string]int {
	set := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		set[name] = struct{}{}
	}
	flags := make(map[string]int, len(vocabulary))
	for _, name := range vocabulary {
		if _, ok := set[name]; ok {
			flags[name] = 1
		} else {
			flags[name] = 0
		}
	}
	return flags
}

// Decode returns every vocabulary name whose flag equals 1, in
// vocabulary order. Keys outside the vocabulary are not reported.
func Decode(flags map[string]int) []string {
	selected := make([]string, 0, len(vocabulary))
	for _, name := range vocabulary {
		if flags[name] == 1 {
			selected = append(selected, name)
		}
	}
	return selected
}
