package scoring

import (
	"fmt"
	"strings"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/pkg/utils"
)

const (
	DefaultMaxPromptResults = 20

	promptTitleLimit   = 200
	promptURLLimit     = 300
	promptSnippetLimit = 400
)

const systemPrompt = `You are a compliance analyst performing adverse media screening.
You assess whether web search results indicate financial crime, corruption, regulatory or reputational risk for a named entity.
Respond with a single JSON object and nothing else.`

const responseTemplate = `Provide a risk analysis in JSON format:
{
  "summary": "concise summary of the findings (max 150 words)",
  "risk_assessment": {
    "overall_risk_score": 0.75,
    "risk_level": "HIGH",
    "financial_crimes_risk": 0.8,
    "corruption_risk": 0.6,
    "regulatory_risk": 0.7,
    "reputational_risk": 0.9
  },
  "key_findings": ["Specific finding with evidence"],
  "risk_factors": ["Factor: description and impact"],
  "compliance_concerns": ["Concern: regulatory or legal implication"],
  "confidence_level": 0.8
}

Risk scoring guidelines:
- 0.00-0.34: LOW risk
- 0.35-0.64: MEDIUM risk
- 0.65-0.84: HIGH risk
- 0.85-1.00: CRITICAL risk

All scores are numbers between 0 and 1. Results that do not concern the entity should not raise its risk.`

// MentionExtractor finds other named entities in free text.
type MentionExtractor interface {
	Mentions(text string) []string
}

// Payload is the prompt pair handed to the model for one screening.
type Payload struct {
	EntityName   string
	StorageKey   string
	SystemPrompt string
	UserPrompt   string
	ResultCount  int
	Truncated    bool
}

// PromptBuilder renders a screening response into a fixed prompt template.
// The same response always yields the same prompt.
type PromptBuilder struct {
	maxResults int
	mentions   MentionExtractor
}

func NewPromptBuilder(maxResults int, mentions MentionExtractor) *PromptBuilder {
	if maxResults <= 0 {
		maxResults = DefaultMaxPromptResults
	}
	return &PromptBuilder{maxResults: maxResults, mentions: mentions}
}

type promptResult struct {
	query string
	item  screening.ResultItem
}

func (b *PromptBuilder) Build(resp *screening.Response) Payload {
	var all []promptResult
	for _, g := range resp.Groups {
		if g.Status != screening.GroupOK {
			continue
		}
		for _, item := range g.Results {
			all = append(all, promptResult{query: g.Query, item: item})
		}
	}

	included := all
	if len(included) > b.maxResults {
		included = included[:b.maxResults]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %s\n", resp.EntityName)
	fmt.Fprintf(&sb, "Category: %s\n", resp.Category)
	fmt.Fprintf(&sb, "Search results (%d of %d):\n", len(included), len(all))

	var corpus strings.Builder
	for i, r := range included {
		title := utils.Truncate(r.item.Title, promptTitleLimit)
		snippet := utils.Truncate(r.item.Snippet, promptSnippetLimit)
		fmt.Fprintf(&sb, "\n%d. Query: %s\n   Title: %s\n   URL: %s\n   Content: %s\n",
			i+1, r.query, title, utils.Truncate(r.item.URL, promptURLLimit), snippet)

		corpus.WriteString(title)
		corpus.WriteString(". ")
		corpus.WriteString(snippet)
		corpus.WriteString("\n")
	}

	if b.mentions != nil && corpus.Len() > 0 {
		if names := b.otherEntities(resp.EntityName, corpus.String()); len(names) > 0 {
			fmt.Fprintf(&sb, "\nOther entities mentioned: %s\n", strings.Join(names, ", "))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(responseTemplate)

	return Payload{
		EntityName:   resp.EntityName,
		StorageKey:   resp.StorageKey,
		SystemPrompt: systemPrompt,
		UserPrompt:   sb.String(),
		ResultCount:  len(included),
		Truncated:    len(all) > len(included),
	}
}

func (b *PromptBuilder) otherEntities(entity, text string) []string {
	var out []string
	for _, name := range b.mentions.Mentions(text) {
		if strings.EqualFold(name, entity) {
			continue
		}
		out = append(out, name)
	}
	return out
}
