package tree

import (
	"slices"
	"sort"
	"time"

	"github.com/sprite-ai/cmtree/internal/model"
)

// ScoreRevealAge is how old a comment must be before its exact score is
// shown to viewers who are neither its author nor an admin.
const ScoreRevealAge = time.Hour

// maxSpacingDepth is the number of depth levels the spacing mask can hold.
const maxSpacingDepth = 64

// Item is one visible row of the linearized thread.
type Item struct {
	Comment model.Comment
	Vote    model.Vote
	Depth   int

	// Spacings has bit d set when a guide line is drawn at depth d on
	// this row.
	Spacings uint64

	HasChildren bool
	Score       int
	OPBadge     bool

	// Collapsed is true when the comment is collapsed and has children.
	// HiddenCount is only set in that case.
	Collapsed   bool
	HiddenCount int

	ScoreVisible bool
	Selected     bool
}

// HasSpacing reports whether bit depth is set in the spacing mask.
func (it Item) HasSpacing(depth int) bool {
	if depth < 0 || depth >= maxSpacingDepth {
		return false
	}
	return it.Spacings&(1<<uint(depth)) != 0
}

// index holds the lookup tables built for one Linearize call.
type index struct {
	byID     map[int64]model.Comment
	byParent map[int64][]model.Comment
	depths   map[int64]int
}

func newIndex(in Input) *index {
	ix := &index{
		byID:     make(map[int64]model.Comment, len(in.Comments)),
		byParent: make(map[int64][]model.Comment),
		depths:   make(map[int64]int, len(in.Comments)),
	}

	// Later duplicates replace earlier ones.
	pos := make(map[int64]int, len(in.Comments))
	for i, c := range in.Comments {
		ix.byID[c.ID] = c
		pos[c.ID] = i
	}

	for i, c := range in.Comments {
		if pos[c.ID] != i {
			continue
		}
		parent := ix.parentOf(c)
		ix.byParent[parent] = append(ix.byParent[parent], c)
	}

	// Children are emitted from the end of the sorted list, so ties are
	// reversed first to come out in input order.
	isOP := func(c model.Comment) bool { return in.OPName != "" && c.Name == in.OPName }
	for _, children := range ix.byParent {
		slices.Reverse(children)
		sort.SliceStable(children, func(i, j int) bool {
			a, b := children[i], children[j]
			if isOP(a) != isOP(b) {
				return !isOP(a)
			}
			return a.Confidence < b.Confidence
		})
	}

	return ix
}

// parentOf returns the parent id used for placement. Comments whose
// parent is unknown, or who name themselves as parent, sit at the root.
func (ix *index) parentOf(c model.Comment) int64 {
	if c.Parent == 0 || c.Parent == c.ID {
		return 0
	}
	if _, ok := ix.byID[c.Parent]; !ok {
		return 0
	}
	return c.Parent
}

// depthOf walks up the parent chain until it hits the root or a memoized
// depth, then fills the memo for every comment on the way.
func (ix *index) depthOf(c model.Comment) int {
	if d, ok := ix.depths[c.ID]; ok {
		return d
	}

	var chain []int64
	base := 0
	cur := c
	for steps := 0; steps <= len(ix.byID); steps++ {
		chain = append(chain, cur.ID)
		parent := ix.parentOf(cur)
		if parent == 0 {
			break
		}
		if d, ok := ix.depths[parent]; ok {
			base = d
			break
		}
		cur = ix.byID[parent]
	}

	for i := len(chain) - 1; i >= 0; i-- {
		base++
		ix.depths[chain[i]] = base
	}
	return ix.depths[c.ID]
}

// subtreeSize counts every descendant of id, ignoring collapse state.
func (ix *index) subtreeSize(id int64) int {
	count := 0
	stack := append([]model.Comment(nil), ix.byParent[id]...)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, ix.byParent[c.ID]...)
	}
	return count
}

// Linearize flattens the comment tree in in into display order. It
// returns nil while the input is not valid and an empty slice for an
// empty thread. now decides whether young comments show their score.
func Linearize(in Input, now time.Time) []Item {
	if !in.Valid {
		return nil
	}
	if len(in.Comments) == 0 {
		return []Item{}
	}

	ix := newIndex(in)

	var ordered []model.Comment
	stack := append([]model.Comment(nil), ix.byParent[0]...)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ordered = append(ordered, c)
		if !in.IsCollapsed(c.ID) {
			stack = append(stack, ix.byParent[c.ID]...)
		}
	}

	depths := make([]int, len(ordered))
	spacings := make([]uint64, len(ordered))
	for i, c := range ordered {
		depth := ix.depthOf(c)
		depths[i] = depth
		if depth >= maxSpacingDepth {
			continue
		}
		bit := uint64(1) << uint(depth)

		if i > 0 && depth > depths[i-1] {
			spacings[i] |= bit
		}
		for j := i - 1; j >= 0 && depths[j] > depth; j-- {
			spacings[j] |= bit
		}
	}

	items := make([]Item, len(ordered))
	for i, c := range ordered {
		vote := in.CurrentVotes.Get(c.ID)
		hasChildren := len(ix.byParent[c.ID]) > 0

		item := Item{
			Comment:      c,
			Vote:         vote,
			Depth:        depths[i],
			Spacings:     spacings[i],
			HasChildren:  hasChildren,
			Score:        Score(c, vote, in.BaseVotes.Get(c.ID)),
			OPBadge:      in.OPName != "" && c.Name == in.OPName,
			ScoreVisible: scoreVisible(in, c, now),
			Selected:     in.Selected != 0 && c.ID == in.Selected,
		}
		if hasChildren && in.IsCollapsed(c.ID) {
			item.Collapsed = true
			item.HiddenCount = ix.subtreeSize(c.ID)
		}
		items[i] = item
	}

	return items
}

// Score returns the displayed score of c. Only the direction of the
// viewer's pending change is applied, never more than one point.
func Score(c model.Comment, current, base model.Vote) int {
	score := c.Up - c.Down
	switch delta := current.Value() - base.Value(); {
	case delta > 0:
		score++
	case delta < 0:
		score--
	}
	return score
}

func scoreVisible(in Input, c model.Comment, now time.Time) bool {
	if in.IsAdmin {
		return true
	}
	if in.SelfName != "" && c.Name == in.SelfName {
		return true
	}
	return c.Created.Before(now.Add(-ScoreRevealAge))
}
