package classify

// A signal is a weighted phrase detector. Phrases are matched as
// case-insensitive substrings of the article's available text.
type signal struct {
	Phrase string
	Weight float64
}

// Detectors per category, strongest language first. Weights are tiered so
// confirmed-breach phrasing dominates incident phrasing, which dominates
// generic security mentions.
var (
	breachSignals = []signal{
		{"unauthorized access", 4.0},
		{"data breach", 4.0},
		{"exfiltrat", 4.0}, // exfiltrate, exfiltrated, exfiltration
		{"ransomware attack", 4.0},
		{"confirmed breach", 4.0},
		{"stolen", 3.5},
		{"leaked", 3.5},
		{"hacked", 3.5},
		{"compromised", 3.5},
		{"breach", 3.0},
	}

	incidentSignals = []signal{
		{"potential incident", 2.5},
		{"security incident", 2.5},
		{"investigating", 2.0},
		{"under investigation", 2.0},
		{"suspicious activity", 2.0},
		{"potential", 1.5},
		{"may have been", 1.5},
	}

	mentionSignals = []signal{
		{"vulnerability", 1.25},
		{"malware", 1.25},
		{"phishing", 1.25},
		{"exploit", 1.25},
		{"security", 1.0},
		{"incident", 1.0},
		{"cyber", 1.0},
		{"patch", 0.75},
	}

	// scaleSignals upgrade severity one step when present; they indicate
	// the blast radius rather than the kind of event.
	scaleSignals = []string{
		"million",
		"customer records",
		"customers affected",
		"thousands of",
		"nationwide",
		"widespread",
		"all users",
	}
)

// regulationWeight is the score a matched regulation keyword contributes
// to the mention category.
const regulationWeight = 1.0
