package agents

import (
	"regexp"
	"strings"
)

// Supported intents
const (
	IntentInvoice    = "invoice"
	IntentRFQ        = "rfq"
	IntentComplaint  = "complaint"
	IntentRegulation = "regulation"

	IntentUnknown = "unknown"
	IntentGeneral = "general"
)

// intentKeywords is ordered: ties in keyword analysis go to the earlier intent.
var intentKeywords = []struct {
	Intent   string
	Keywords []string
}{
	{IntentInvoice, []string{"invoice", "bill", "payment", "amount due"}},
	{IntentRFQ, []string{"rfq", "request for quote", "quote request", "pricing"}},
	{IntentComplaint, []string{"complaint", "issue", "problem", "concern"}},
	{IntentRegulation, []string{"regulation", "compliance", "policy", "requirement"}},
}

// SupportedIntents lists the intents in tie-break order
func SupportedIntents() []string {
	out := make([]string, len(intentKeywords))
	for i, k := range intentKeywords {
		out[i] = k.Intent
	}
	return out
}

// IsSupportedIntent reports whether intent is one of the four known intents
func IsSupportedIntent(intent string) bool {
	for _, k := range intentKeywords {
		if k.Intent == intent {
			return true
		}
	}
	return false
}

// IntentScores counts, per intent, how many of its keywords occur in the
// lowercased text.
func IntentScores(text string) map[string]int {
	lower := strings.ToLower(text)
	scores := make(map[string]int, len(intentKeywords))
	for _, k := range intentKeywords {
		n := 0
		for _, kw := range k.Keywords {
			if strings.Contains(lower, kw) {
				n++
			}
		}
		scores[k.Intent] = n
	}
	return scores
}

// AnalyzeIntent returns the intent with the most keyword hits, or
// IntentUnknown when nothing matches.
func AnalyzeIntent(text string) string {
	scores := IntentScores(text)
	best, bestScore := IntentUnknown, 0
	for _, k := range intentKeywords {
		if scores[k.Intent] > bestScore {
			best, bestScore = k.Intent, scores[k.Intent]
		}
	}
	return best
}

var intentPatterns = compileIntentPatterns()

func compileIntentPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(intentKeywords))
	for i, k := range intentKeywords {
		quoted := make([]string, len(k.Keywords))
		for j, kw := range k.Keywords {
			quoted[j] = regexp.QuoteMeta(kw)
		}
		out[i] = regexp.MustCompile(strings.Join(quoted, "|"))
	}
	return out
}

// MatchIntent returns the first intent, in table order, with any keyword in
// text, or IntentGeneral.
func MatchIntent(text string) string {
	lower := strings.ToLower(text)
	for i, re := range intentPatterns {
		if re.MatchString(lower) {
			return intentKeywords[i].Intent
		}
	}
	return IntentGeneral
}

// Urgency levels
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

var urgencyPatterns = []struct {
	Level   string
	Pattern *regexp.Regexp
}{
	{UrgencyHigh, regexp.MustCompile(`urgent|asap|immediately|critical|emergency`)},
	{UrgencyMedium, regexp.MustCompile(`soon|shortly|prompt|timely`)},
	{UrgencyLow, regexp.MustCompile(`when possible|at your convenience|no rush`)},
}

// DetectUrgency returns the first urgency level whose keywords occur in
// text. Defaults to low.
func DetectUrgency(text string) string {
	lower := strings.ToLower(text)
	for _, u := range urgencyPatterns {
		if u.Pattern.MatchString(lower) {
			return u.Level
		}
	}
	return UrgencyLow
}
