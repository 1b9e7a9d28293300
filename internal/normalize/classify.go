package normalize

import (
	"strings"

	"FeedCurator/internal/domain"
)

// ViralThreshold is the social engagement above which a post counts as breaking.
const ViralThreshold = 1000

var (
	breakingKeywords = []string{"breaking", "urgent", "confirmed", "just in", "🚨", "🔥"}
	transferKeywords = []string{"transfer", "signs", "signing", "signed", "deal", "joins", "loan"}
	teamKeywords     = []string{"team", "squad", "lineup", "line-up", "training", "starting xi", "injury"}
)

// Classify assigns the first matching category in precedence order
// breaking, transfer, team, general. engagement only applies to social posts;
// pass a negative value for feed items.
func Classify(text string, engagement int) domain.Category {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, breakingKeywords) || engagement > ViralThreshold:
		return domain.CategoryBreaking
	case containsAny(lower, transferKeywords):
		return domain.CategoryTransfer
	case containsAny(lower, teamKeywords):
		return domain.CategoryTeam
	default:
		return domain.CategoryGeneral
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
