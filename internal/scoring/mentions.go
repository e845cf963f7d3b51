package scoring

import (
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/pkg/logger"
)

const DefaultMentionLimit = 15

// ProseMentions extracts named entities with the prose NER tagger.
type ProseMentions struct {
	Limit int
}

func (p ProseMentions) Mentions(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		logger.Debug("Entity extraction failed", zap.Error(err))
		return nil
	}

	counts := make(map[string]int)
	for _, ent := range doc.Entities() {
		name := strings.TrimSpace(ent.Text)
		if name == "" {
			continue
		}
		counts[name]++
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultMentionLimit
	}
	return rankMentions(counts, limit)
}

// rankMentions orders names by frequency, then alphabetically.
func rankMentions(counts map[string]int, limit int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}
