// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import "regexp"

var stopwords = toSet(
	"i", "im", "i'm", "me", "my", "myself", "we", "our", "ours", "ourselves",
	"you", "your", "yours", "yourself", "yourselves", "he", "him", "his",
	"himself", "she", "her", "hers", "herself", "it", "its", "itself",
	"they", "them", "their", "theirs", "themselves", "what", "which", "who",
	"whom", "this", "that", "these", "those", "am", "is", "are", "was",
	"were", "be", "been", "being", "have", "has", "had", "having", "do",
	"does", "did", "doing", "a", "an", "the", "and", "but", "if", "or",
	"because", "as", "until", "while", "of", "at", "by", "for", "with",
	"about", "against", "between", "into", "through", "during", "before",
	"after", "above", "below", "to", "from", "up", "down", "in", "out",
	"on", "off", "over", "under", "again", "further", "then", "once",
	"here", "there", "when", "where", "why", "how", "all", "each", "few",
	"more", "most", "other", "some", "such", "no", "nor", "not", "only",
	"own", "same", "so", "than", "too", "very", "can", "will", "just",
	"should", "now", "thinking", "want", "would", "could", "might",
)

var scientificPatterns = compileAll(
	`quantum\s+\w+`, `double\s+slit`, `wave[\s-]particle`,
	`superposition`, `entanglement`, `decoherence`,
	`superconductor\w*`, `superconductivity`,
	`crispr`, `gene\s+therapy`, `protein\s+\w+`,
	`enzyme\w*`, `\bdna\b`, `\brna\b`, `molecular\s+\w+`,
	`machine\s+learning`, `deep\s+learning`, `neural\s+network\w*`,
	`artificial\s+intelligence`, `natural\s+language`,
	`experiment\w*`, `hypothesis`, `theory`, `phenomenon`,
	`mechanism\w*`, `effect\w*`, `synthesis`,
)

var scientificKeywords = []string{
	"quantum", "molecular", "experiment", "theory", "hypothesis",
	"mechanism", "effect", "synthesis", "reaction", "neural",
	"genetic", "protein", "cell", "particle", "wave",
}

var synonyms = map[string][]string{
	"double slit":          {"two slit", "Young's experiment", "double slit interference"},
	"quantum":              {"quantum mechanics", "quantum physics", "quantum theory"},
	"molecule":             {"molecular", "molecules"},
	"electron":             {"electrons", "electronic"},
	"experiment":           {"study", "investigation", "research"},
	"crispr":               {"CRISPR-Cas9", "gene editing", "genome editing"},
	"machine learning":     {"ML", "statistical learning"},
	"deep learning":        {"neural network", "neural networks", "DNN"},
	"superconductor":       {"superconducting", "superconductivity"},
	"intermittent fasting": {"time-restricted eating", "fasting"},
}

// synonymKeys fixes the partial-match order so results are deterministic.
var synonymKeys = []string{
	"double slit", "quantum", "molecule", "electron", "experiment", "crispr",
	"machine learning", "deep learning", "superconductor", "intermittent fasting",
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
