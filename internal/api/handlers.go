package api

import (
	"net/http"
	"time"

	"github.com/sprite-ai/cmtree/internal/model"
	"github.com/sprite-ai/cmtree/internal/tree"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Wire types ---

type commentJSON struct {
	ID         int64   `json:"id"`
	Parent     int64   `json:"parent"`
	Name       string  `json:"name"`
	Content    string  `json:"content"`
	Created    int64   `json:"created"`
	Up         int     `json:"up"`
	Down       int     `json:"down"`
	Confidence float64 `json:"confidence"`
}

type voteJSON struct {
	ID   int64      `json:"id"`
	Vote model.Vote `json:"vote"`
}

type itemJSON struct {
	Comment      commentJSON `json:"comment"`
	Vote         model.Vote  `json:"vote"`
	Depth        int         `json:"depth"`
	Spacings     uint64      `json:"spacings"`
	HasChildren  bool        `json:"has_children"`
	Score        int         `json:"score"`
	ScoreVisible bool        `json:"score_visible"`
	OPBadge      bool        `json:"op_badge,omitempty"`
	Collapsed    bool        `json:"collapsed,omitempty"`
	HiddenCount  int         `json:"hidden_count,omitempty"`
	Selected     bool        `json:"selected,omitempty"`
}

func toComments(in []commentJSON) []model.Comment {
	out := make([]model.Comment, 0, len(in))
	for _, c := range in {
		out = append(out, model.Comment{
			ID:         c.ID,
			Parent:     c.Parent,
			Name:       c.Name,
			Content:    c.Content,
			Created:    time.Unix(c.Created, 0).UTC(),
			Up:         c.Up,
			Down:       c.Down,
			Confidence: c.Confidence,
		})
	}
	return out
}

func toVotes(in []voteJSON) model.Votes {
	out := make(model.Votes, len(in))
	for _, v := range in {
		if v.Vote != model.VoteNeutral {
			out[v.ID] = v.Vote
		}
	}
	return out
}

func toItemsJSON(items []tree.Item) []itemJSON {
	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		c := it.Comment
		out = append(out, itemJSON{
			Comment: commentJSON{
				ID:         c.ID,
				Parent:     c.Parent,
				Name:       c.Name,
				Content:    c.Content,
				Created:    c.Created.Unix(),
				Up:         c.Up,
				Down:       c.Down,
				Confidence: c.Confidence,
			},
			Vote:         it.Vote,
			Depth:        it.Depth,
			Spacings:     it.Spacings,
			HasChildren:  it.HasChildren,
			Score:        it.Score,
			ScoreVisible: it.ScoreVisible,
			OPBadge:      it.OPBadge,
			Collapsed:    it.Collapsed,
			HiddenCount:  it.HiddenCount,
			Selected:     it.Selected,
		})
	}
	return out
}

// --- Linearize ---

type linearizeRequest struct {
	Comments  []commentJSON `json:"comments"`
	Votes     []voteJSON    `json:"votes,omitempty"`
	BaseVotes []voteJSON    `json:"base_votes,omitempty"`
	Collapsed []int64       `json:"collapsed,omitempty"`
	OP        string        `json:"op,omitempty"`
	Self      string        `json:"self,omitempty"`
	Admin     bool          `json:"admin,omitempty"`
	Selected  int64         `json:"selected,omitempty"`
}

type linearizeResponse struct {
	Total int        `json:"total"`
	Items []itemJSON `json:"items"`
}

func (s *Server) handleLinearize(w http.ResponseWriter, r *http.Request) {
	var req linearizeRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if req.Comments == nil {
		s.writeError(w, http.StatusBadRequest, "comments are required")
		return
	}

	// Explicit base votes win over the current ones, as in a session.
	// Without them the current votes are the baseline.
	comments := toComments(req.Comments)
	var base model.Votes
	if req.BaseVotes != nil {
		base = toVotes(req.BaseVotes).Complete(comments)
	}
	in := tree.Input{BaseVotes: base}.
		WithComments(comments, toVotes(req.Votes)).
		WithOP(req.OP).
		WithViewer(req.Self, req.Admin).
		WithSelected(req.Selected).
		WithCollapsedIDs(req.Collapsed...)

	items := tree.Linearize(in, s.now())
	s.writeJSON(w, http.StatusOK, linearizeResponse{
		Total: len(req.Comments),
		Items: toItemsJSON(items),
	})
}
