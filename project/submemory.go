package project

import (
	"fmt"

	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/validate"
)

// SetSubmemory validates and persists a grouped-summary document under
// its (context, subcontext) key, creating or replacing it. Names and
// tags are normalized, the auto-repairable defects are fixed, and
// validation happens before any persistence.
func (p *Project) SetSubmemory(sub *format.Submemory) (string, error) {
	ctxName, err := format.NormalizeName(sub.Context, format.KindContext)
	if err != nil {
		return "", err
	}
	subName, err := format.NormalizeName(sub.Subcontext, format.KindSubcontext)
	if err != nil {
		return "", err
	}
	sub.Context = ctxName
	sub.Subcontext = subName
	if sub.ID == "" {
		sub.ID = p.newID()
	}
	now := p.now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	validate.RepairSubmemory(sub)
	if res := validate.Submemory(sub); !res.Valid() {
		return "", &res
	}

	root, err := p.cache.Root()
	if err != nil {
		return "", err
	}
	if _, ok := root.Contexts[ctxName]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownContext, ctxName)
	}

	key := format.SubmemoryKey(ctxName, subName)
	if err := p.cache.SetSubmemory(key, sub); err != nil {
		return "", err
	}
	return key, nil
}

// GetSubmemory reads a grouped-summary document from the cache.
func (p *Project) GetSubmemory(contextName, subcontext string) (*format.Submemory, error) {
	ctxName, err := format.NormalizeName(contextName, format.KindContext)
	if err != nil {
		return nil, err
	}
	subName, err := format.NormalizeName(subcontext, format.KindSubcontext)
	if err != nil {
		return nil, err
	}
	return p.cache.Submemory(format.SubmemoryKey(ctxName, subName))
}

// RemoveSubmemory deletes a grouped-summary document.
func (p *Project) RemoveSubmemory(contextName, subcontext string) error {
	ctxName, err := format.NormalizeName(contextName, format.KindContext)
	if err != nil {
		return err
	}
	subName, err := format.NormalizeName(subcontext, format.KindSubcontext)
	if err != nil {
		return err
	}
	return p.cache.RemoveSubmemory(format.SubmemoryKey(ctxName, subName))
}
