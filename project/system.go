package project

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/memkeep/memkeep/cache"
	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/index"
	"github.com/memkeep/memkeep/validate"
)

// SystemReport is the outcome of a whole-corpus validation pass.
type SystemReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Stats aggregates the cache view and the index view of the corpus.
type Stats struct {
	Cache cache.Stats  `json:"cache"`
	Index *index.Stats `json:"index"`
}

// GetStats reports corpus statistics, computed on demand.
func (p *Project) GetStats(ctx context.Context) (*Stats, error) {
	cacheStats, err := p.cache.Stats()
	if err != nil {
		return nil, err
	}
	indexStats, err := p.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Cache: cacheStats, Index: indexStats}, nil
}

// ValidateSystem validates the root document, every submemory and every
// link, including the existence of each link's target document. Broken
// links are errors; they are repairable through CleanupBrokenLinks.
func (p *Project) ValidateSystem() (*SystemReport, error) {
	report := &SystemReport{Errors: []string{}, Warnings: []string{}}

	root, err := p.cache.Root()
	switch {
	case err == nil:
		res := validate.Root(root)
		report.collect("root", res)
	case err == cache.ErrRootMissing:
		report.Warnings = append(report.Warnings, "root: no root document provisioned yet")
	default:
		return nil, err
	}

	subs, err := p.cache.AllSubmemories()
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		return format.SubmemoryKey(subs[i].Context, subs[i].Subcontext) < format.SubmemoryKey(subs[j].Context, subs[j].Subcontext)
	})
	for _, sub := range subs {
		key := format.SubmemoryKey(sub.Context, sub.Subcontext)
		report.collect("submemory "+key, validate.Submemory(sub))
		for _, ref := range sub.References {
			if ref.Path == "" {
				continue
			}
			if _, err := p.fs.Stat(p.layout.MemoryPath(ref.Path)); err != nil {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("submemory %s: reference %q points to a missing document", key, ref.Path))
			}
		}
	}

	allLinks, err := p.cache.AllLinks()
	if err != nil {
		return nil, err
	}
	contexts := lo.Keys(allLinks)
	sort.Strings(contexts)
	for _, contextName := range contexts {
		for i, link := range allLinks[contextName] {
			report.collect(fmt.Sprintf("link %s[%d]", contextName, i), validate.Link(link))
			if link.DocumentPath == "" {
				continue
			}
			if _, err := p.fs.Stat(p.layout.MemoryPath(link.DocumentPath)); err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("link %s[%d]: broken link to %q", contextName, i, link.DocumentPath))
			}
		}
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

func (r *SystemReport) collect(prefix string, res validate.Result) {
	for _, issue := range res.Errors {
		r.Errors = append(r.Errors, prefix+": "+issue.String())
	}
	for _, issue := range res.Warnings {
		r.Warnings = append(r.Warnings, prefix+": "+issue.String())
	}
}

// CleanupReport summarizes a broken-link cleanup pass.
type CleanupReport struct {
	Removed int      `json:"removed"`
	Details []string `json:"details,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// CleanupBrokenLinks removes exactly the links whose target document no
// longer exists. Per-link failures are collected, not fatal.
func (p *Project) CleanupBrokenLinks() (*CleanupReport, error) {
	allLinks, err := p.cache.AllLinks()
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{}
	contexts := lo.Keys(allLinks)
	sort.Strings(contexts)
	for _, contextName := range contexts {
		// walk backwards so earlier indexes stay valid while removing
		table := allLinks[contextName]
		for i := len(table) - 1; i >= 0; i-- {
			link := table[i]
			if link.DocumentPath == "" {
				continue
			}
			if _, err := p.fs.Stat(p.layout.MemoryPath(link.DocumentPath)); err == nil {
				continue
			}
			if err := p.cache.RemoveLink(contextName, i); err != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("link %s[%d]: %v", contextName, i, err))
				continue
			}
			report.Removed++
			report.Details = append(report.Details,
				fmt.Sprintf("removed link %s[%d] -> %s", contextName, i, link.DocumentPath))
		}
	}
	p.logger.Info().Int("removed", report.Removed).Msg("broken link cleanup completed")
	return report, nil
}
