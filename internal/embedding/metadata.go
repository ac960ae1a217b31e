package embedding

import (
	"strings"
	"unicode"

	"github.com/xxxsen/chatvec/internal/model"
)

const maxKeywords = 20

// ChatContext is what the pipeline knows about the chat a message belongs to.
type ChatContext struct {
	ChatID       string
	Participants []string
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "this": {}, "that": {},
	"with": {}, "they": {}, "from": {}, "will": {}, "would": {}, "there": {},
	"their": {}, "what": {}, "about": {}, "which": {}, "when": {}, "just": {},
	"your": {}, "some": {}, "them": {}, "then": {}, "than": {}, "been": {},
	"were": {}, "said": {}, "each": {}, "like": {}, "into": {}, "also": {},
}

var decisionPhrases = []string{
	"we decided",
	"decision made",
	"let's go with",
	"lets go with",
	"agreed on",
	"final decision",
	"we'll use",
	"settled on",
}

var actionPhrases = []string{
	"todo",
	"to-do",
	"action item",
	"follow up",
	"follow-up",
	"please send",
	"please review",
	"can you",
	"could you",
	"don't forget",
	"by tomorrow",
	"by monday",
	"by friday",
	"by end of",
	"deadline",
}

// DeriveMetadata extracts searchable hints from message text. Best effort:
// it never fails, a degenerate input just yields empty metadata.
func DeriveMetadata(text string, chatCtx ChatContext) model.SearchableMetadata {
	lower := strings.ToLower(text)
	meta := model.SearchableMetadata{
		Keywords:      extractKeywords(lower),
		Participants:  dedupe(chatCtx.Participants),
		DecisionMade:  containsAny(lower, decisionPhrases),
		HasActionItem: containsAny(lower, actionPhrases),
	}
	return meta
}

func extractKeywords(lower string) []string {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, maxKeywords)
	for _, word := range fields {
		if len(word) < 3 {
			continue
		}
		if _, ok := stopwords[word]; ok {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) >= maxKeywords {
			break
		}
	}
	return keywords
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func containsAny(lower string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
