// Package model defines the core data types shared across cmtree.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Vote is the viewer's vote on a single comment.
type Vote int

const (
	VoteNeutral Vote = iota
	VoteUp
	VoteDown
)

func (v Vote) String() string {
	switch v {
	case VoteNeutral:
		return "neutral"
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return "unknown"
	}
}

// Value returns the numeric weight of the vote: +1, -1 or 0.
func (v Vote) Value() int {
	switch v {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	default:
		return 0
	}
}

// ParseVote accepts "up", "down", "neutral" and the numeric forms "1",
// "-1" and "0".
func ParseVote(s string) (Vote, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "1", "+1":
		return VoteUp, nil
	case "down", "-1":
		return VoteDown, nil
	case "neutral", "0", "":
		return VoteNeutral, nil
	default:
		return VoteNeutral, fmt.Errorf("unknown vote %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Vote) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Vote) UnmarshalText(text []byte) error {
	parsed, err := ParseVote(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalJSON accepts both the string and the numeric vote forms.
func (v *Vote) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*v = VoteNeutral
		return nil
	}
	return v.UnmarshalText([]byte(s))
}

// Votes maps comment ids to votes. A missing key means VoteNeutral.
type Votes map[int64]Vote

// Get returns the vote for id, or VoteNeutral.
func (vs Votes) Get(id int64) Vote {
	return vs[id]
}

// Clone returns a copy that can be modified independently.
func (vs Votes) Clone() Votes {
	out := make(Votes, len(vs))
	for id, v := range vs {
		out[id] = v
	}
	return out
}

// Complete returns a copy of vs holding an explicit entry for every
// comment, neutral where vs has none. Used as a baseline it pins each
// comment's server state, so later votes show up as score deltas.
func (vs Votes) Complete(comments []Comment) Votes {
	out := vs.Clone()
	for _, c := range comments {
		if _, ok := out[c.ID]; !ok {
			out[c.ID] = VoteNeutral
		}
	}
	return out
}

// Comment is a single comment of a post as delivered by the board.
type Comment struct {
	ID         int64
	Parent     int64 // 0 for top-level comments
	Name       string
	Created    time.Time
	Content    string
	Confidence float64
	Up         int
	Down       int
}

// IsRoot reports whether the comment replies directly to the post.
func (c Comment) IsRoot() bool {
	return c.Parent == 0
}
