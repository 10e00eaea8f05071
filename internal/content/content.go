// Package content implements the on-demand plagiarism and AI-generated-text
// scanners.
//
// Both checks are deterministic pattern heuristics over the submitted text:
// no corpus, no model, no network. They exist to surface obvious cues for a
// human reviewer, not to prove anything.
package content

import (
	"regexp"
	"strings"
)

// PlagiarismThreshold is the indicator-weight sum above which text is
// flagged as plagiarized.
const PlagiarismThreshold = 0.5

// AIProbabilityThreshold is the probability above which text is flagged as
// AI generated.
const AIProbabilityThreshold = 50

// plagiarismIndicator is one weighted regex cue.
type plagiarismIndicator struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

var plagiarismIndicators = []plagiarismIndicator{
	{
		name:   "bracketed_citation",
		re:     regexp.MustCompile(`\[\d+\]`),
		weight: 0.2,
	},
	{
		name:   "attribution_phrase",
		re:     regexp.MustCompile(`(?i)\baccording to [A-Z][a-z]+`),
		weight: 0.2,
	},
	{
		name:   "academic_citation",
		re:     regexp.MustCompile(`(?i)\bet al\.`),
		weight: 0.2,
	},
	{
		name:   "dense_formal_transitions",
		re:     regexp.MustCompile(`(?is)\b(furthermore|moreover|consequently|nevertheless|notwithstanding)\b.*\b(furthermore|moreover|consequently|nevertheless|notwithstanding)\b.*\b(furthermore|moreover|consequently|nevertheless|notwithstanding)\b`),
		weight: 0.3,
	},
	{
		name:   "ai_self_reference",
		re:     regexp.MustCompile(`(?i)\bas an ai\b|\bas a language model\b|\bi cannot browse\b`),
		weight: 0.4,
	},
}

// aiPhrases are literal disclosure phrases worth aiPhrasePoints each.
// Matching is case-insensitive substring; overlapping phrases all count.
var aiPhrases = []string{
	"as an ai",
	"as an ai language model",
	"as a large language model",
	"language model",
	"i cannot",
	"i'm unable to",
	"i do not have access",
	"i don't have personal",
	"it is important to note",
	"it's important to note",
	"i hope this helps",
	"in conclusion, it is",
}

const (
	aiPhrasePoints   = 15
	aiBulletBonus    = 20
	aiBulletLineMin  = 3
	aiProbabilityMax = 100
)

var bulletLine = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)

// PlagiarismResult is the structured outcome of a plagiarism check.
type PlagiarismResult struct {
	Score         float64  `json:"score"`
	Indicators    []string `json:"indicators"`
	IsPlagiarized bool     `json:"is_plagiarized"`
}

// AIResult is the structured outcome of an AI-generated-text check.
type AIResult struct {
	Probability   int      `json:"probability"`
	Indicators    []string `json:"indicators"`
	IsAIGenerated bool     `json:"is_ai_generated"`
}

// CheckPlagiarism sums the weights of all matched indicators.
func CheckPlagiarism(text string) PlagiarismResult {
	res := PlagiarismResult{Indicators: []string{}}

	for _, ind := range plagiarismIndicators {
		if ind.re.MatchString(text) {
			res.Score += ind.weight
			res.Indicators = append(res.Indicators, ind.name)
		}
	}

	res.IsPlagiarized = res.Score > PlagiarismThreshold
	return res
}

// CheckAIGenerated scores literal AI-disclosure phrases and list-heavy
// formatting.
func CheckAIGenerated(text string) AIResult {
	res := AIResult{Indicators: []string{}}
	lower := strings.ToLower(text)

	for _, phrase := range aiPhrases {
		if strings.Contains(lower, phrase) {
			res.Probability += aiPhrasePoints
			res.Indicators = append(res.Indicators, phrase)
		}
	}

	if len(bulletLine.FindAllStringIndex(text, -1)) > aiBulletLineMin {
		res.Probability += aiBulletBonus
		res.Indicators = append(res.Indicators, "list_heavy_formatting")
	}

	if res.Probability > aiProbabilityMax {
		res.Probability = aiProbabilityMax
	}
	res.IsAIGenerated = res.Probability > AIProbabilityThreshold
	return res
}
