// Package tree turns a flat list of comments with parent pointers into a
// render-ready list, and keeps the view state that drives it.
package tree

import (
	"github.com/sprite-ai/cmtree/internal/model"
)

// Input is an immutable snapshot of everything the linearizer reads.
// The With* helpers return a new Input and copy whatever they change, so
// a snapshot that has been handed to Linearize is never modified.
type Input struct {
	Valid        bool
	Comments     []model.Comment
	CurrentVotes model.Votes
	BaseVotes    model.Votes
	Collapsed    map[int64]bool
	OPName       string
	SelfName     string
	IsAdmin      bool
	Selected     int64
}

// WithComments replaces the comment list and the vote overlay.
func (in Input) WithComments(comments []model.Comment, votes model.Votes) Input {
	out := in.WithVotes(votes)
	out.Valid = true
	out.Comments = append([]model.Comment(nil), comments...)
	return out
}

// WithVotes replaces the current votes. Base votes already known take
// precedence over the new ones, so the first vote seen for a comment
// stays its baseline.
func (in Input) WithVotes(votes model.Votes) Input {
	base := votes.Clone()
	for id, v := range in.BaseVotes {
		base[id] = v
	}
	in.CurrentVotes = votes.Clone()
	in.BaseVotes = base
	return in
}

// WithCollapsed adds id to the collapsed set.
func (in Input) WithCollapsed(id int64) Input {
	collapsed := make(map[int64]bool, len(in.Collapsed)+1)
	for k := range in.Collapsed {
		collapsed[k] = true
	}
	collapsed[id] = true
	in.Collapsed = collapsed
	return in
}

// WithCollapsedIDs adds every id in ids to the collapsed set, copying
// the set once.
func (in Input) WithCollapsedIDs(ids ...int64) Input {
	if len(ids) == 0 {
		return in
	}
	collapsed := make(map[int64]bool, len(in.Collapsed)+len(ids))
	for k := range in.Collapsed {
		collapsed[k] = true
	}
	for _, id := range ids {
		collapsed[id] = true
	}
	in.Collapsed = collapsed
	return in
}

// WithExpanded removes id from the collapsed set.
func (in Input) WithExpanded(id int64) Input {
	collapsed := make(map[int64]bool, len(in.Collapsed))
	for k := range in.Collapsed {
		if k != id {
			collapsed[k] = true
		}
	}
	in.Collapsed = collapsed
	return in
}

// WithSelected highlights id. Zero clears the selection.
func (in Input) WithSelected(id int64) Input {
	in.Selected = id
	return in
}

// WithViewer sets who is looking at the thread.
func (in Input) WithViewer(self string, admin bool) Input {
	in.SelfName = self
	in.IsAdmin = admin
	return in
}

// WithOP sets the author of the post.
func (in Input) WithOP(name string) Input {
	in.OPName = name
	return in
}

// Cleared drops the comment list.
func (in Input) Cleared() Input {
	in.Comments = nil
	return in
}

// IsCollapsed reports whether id is in the collapsed set.
func (in Input) IsCollapsed(id int64) bool {
	return in.Collapsed[id]
}
