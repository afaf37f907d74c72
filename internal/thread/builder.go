// Package thread assembles flat comment rows into bounded-depth reply
// trees. Comments reference parents by id only; trees are built on read
// via an arena keyed by id, never via back-pointers.
package thread

import (
	"github.com/trogers1052/pattern-review-service/internal/models"
	"github.com/trogers1052/pattern-review-service/internal/ranking"
)

// BuildTree groups comments by parent id and attaches children
// recursively, deriving depth from the root. A subtree rooted at
// depth >= maxDepth keeps its root but drops the children, leaving a
// single continue-thread marker so the client can fetch that subtree as
// its own root later. Roots are comments whose parent is absent from the
// input set. Siblings at every level are ordered by "best".
func BuildTree(comments []*models.Comment, maxDepth int) []*models.CommentThread {
	if len(comments) == 0 {
		return nil
	}

	byID := make(map[string]*models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	children := make(map[string][]*models.Comment)
	var roots []*models.Comment
	for _, c := range comments {
		if c.ParentID != nil {
			if _, ok := byID[*c.ParentID]; ok {
				children[*c.ParentID] = append(children[*c.ParentID], c)
				continue
			}
		}
		roots = append(roots, c)
	}

	sortByBest(roots)
	nodes := make([]*models.CommentThread, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, buildNode(root, children, 0, maxDepth))
	}
	return nodes
}

func buildNode(c *models.Comment, children map[string][]*models.Comment, depth, maxDepth int) *models.CommentThread {
	c.Depth = depth
	node := &models.CommentThread{Comment: c}

	kids := children[c.ID]
	if len(kids) == 0 {
		return node
	}

	if depth >= maxDepth {
		node.Continue = &models.ContinueMarker{CommentID: c.ID}
		return node
	}

	sortByBest(kids)
	for _, kid := range kids {
		node.Replies = append(node.Replies, buildNode(kid, children, depth+1, maxDepth))
	}
	return node
}

func sortByBest(comments []*models.Comment) {
	items := make([]*models.Rankable, len(comments))
	index := make(map[string]*models.Comment, len(comments))
	for i, c := range comments {
		items[i] = &models.Rankable{
			ItemID:    c.ID,
			Score:     c.Score,
			Upvotes:   c.Upvotes,
			Downvotes: c.Downvotes,
			CreatedAt: c.CreatedAt,
		}
		index[c.ID] = c
	}
	ranking.Sort(items, models.SortBest)
	for i, it := range items {
		comments[i] = index[it.ItemID]
	}
}
