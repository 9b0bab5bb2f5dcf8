package project

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/memkeep/memkeep/format"
)

// TreeNode is one level of the corpus hierarchy: the root, a context, a
// subcontext or a leaf document.
type TreeNode struct {
	Name        string      `json:"name"`
	Kind        string      `json:"kind"` // root | context | subcontext | memory
	Description string      `json:"description,omitempty"`
	Priority    int         `json:"priority,omitempty"`
	Path        string      `json:"path,omitempty"`
	Children    []*TreeNode `json:"children,omitempty"`
}

// Tree depth levels.
const (
	DepthContexts    = 1
	DepthSubcontexts = 2
	DepthMemories    = 3
)

// GetTree renders the corpus hierarchy. An empty contextName returns the
// whole tree; depth <= 0 means full depth. Children are sorted by name
// so output is stable.
func (p *Project) GetTree(contextName string, depth int) (*TreeNode, error) {
	root, err := p.cache.Root()
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = DepthMemories
	}

	node := &TreeNode{Name: root.Project, Kind: "root"}

	names := lo.Keys(root.Contexts)
	sort.Strings(names)
	if contextName != "" {
		normalized, err := format.NormalizeName(contextName, format.KindContext)
		if err != nil {
			return nil, err
		}
		names = lo.Filter(names, func(n string, _ int) bool { return n == normalized })
	}

	for _, name := range names {
		ctx := root.Contexts[name]
		ctxNode := &TreeNode{
			Name:        name,
			Kind:        "context",
			Description: ctx.Description,
			Priority:    ctx.Priority,
		}
		if depth >= DepthSubcontexts {
			ctxNode.Children = p.subcontextNodes(name, depth)
		}
		node.Children = append(node.Children, ctxNode)
	}
	return node, nil
}

func (p *Project) subcontextNodes(contextName string, depth int) []*TreeNode {
	entries, err := p.fs.ReadDir(p.layout.MemoryDir(contextName, ""))
	if err != nil {
		return nil
	}
	var nodes []*TreeNode
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := &TreeNode{Name: entry.Name(), Kind: "subcontext"}
		if depth >= DepthMemories {
			sub.Children = p.memoryNodes(contextName, entry.Name())
		}
		nodes = append(nodes, sub)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes
}

func (p *Project) memoryNodes(contextName, subcontext string) []*TreeNode {
	entries, err := p.fs.ReadDir(p.layout.MemoryDir(contextName, subcontext))
	if err != nil {
		return nil
	}
	var nodes []*TreeNode
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, format.MemoryExt) {
			continue
		}
		nodes = append(nodes, &TreeNode{
			Name: name,
			Kind: "memory",
			Path: contextName + "/" + subcontext + "/" + name,
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes
}
