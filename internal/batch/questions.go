package batch

// DefaultQuestions open every call script, before any caller questions.
var DefaultQuestions = []string{
	"Is the unit still available?",
	"What is the earliest move-in date?",
	"Are utilities included in the rent?",
	"Any application fees or broker fees?",
	"What is the lease term and renewal policy?",
	"Are pets allowed, and are there restrictions or fees?",
	"Is parking available and what are the costs?",
	"Have there been any recent updates or renovations?",
}

// BuildQuestionSet appends userQuestions to DefaultQuestions keeping the
// first occurrence of every exact duplicate.
func BuildQuestionSet(userQuestions []string) []string {
	merged := make([]string, 0, len(DefaultQuestions)+len(userQuestions))
	seen := make(map[string]struct{}, cap(merged))

	for _, sources := range [][]string{DefaultQuestions, userQuestions} {
		for _, question := range sources {
			if _, ok := seen[question]; ok {
				continue
			}

			seen[question] = struct{}{}
			merged = append(merged, question)
		}
	}

	return merged
}
