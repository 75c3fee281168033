package amend

import "strings"

// ClassificationPolicy maps free text to a record category. Implementations
// must be deterministic: identical text always yields the identical result.
type ClassificationPolicy interface {
	Classify(text string) (category string, ok bool)
}

const EjectionCategory = "ejection"

// ejectionPhrases is the fixed vocabulary signalling a person was removed
// from the premises. Matching is case-insensitive substring containment.
var ejectionPhrases = []string{
	"ejected",
	"ejection",
	"escorted out",
	"escorted off",
	"escorted from the",
	"removed from site",
	"removed from the site",
	"removed from venue",
	"removed from the venue",
	"removed from premises",
	"removed from the premises",
	"banned",
}

type keywordPolicy struct {
	category string
	phrases  []string
}

func NewEjectionPolicy() ClassificationPolicy {
	return &keywordPolicy{category: EjectionCategory, phrases: ejectionPhrases}
}

func (p *keywordPolicy) Classify(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, phrase := range p.phrases {
		if strings.Contains(lowered, phrase) {
			return p.category, true
		}
	}
	return "", false
}
