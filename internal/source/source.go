// Package source loads comment threads from JSON or YAML files.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sprite-ai/cmtree/internal/model"
)

// ErrUnknownFormat is returned for files that are neither JSON nor YAML.
var ErrUnknownFormat = errors.New("unknown thread file format")

// Thread is one post's comments together with the viewer's votes on them.
type Thread struct {
	PostID   int64
	OP       string
	Comments []model.Comment
	Votes    model.Votes
}

// threadFile is the on-disk layout shared by the JSON and YAML formats.
type threadFile struct {
	PostID   int64         `json:"post_id" yaml:"post_id"`
	OP       string        `json:"op" yaml:"op"`
	Comments []commentFile `json:"comments" yaml:"comments"`
	Votes    []voteFile    `json:"votes,omitempty" yaml:"votes,omitempty"`
}

type commentFile struct {
	ID         int64   `json:"id" yaml:"id"`
	Parent     int64   `json:"parent" yaml:"parent"`
	Name       string  `json:"name" yaml:"name"`
	Content    string  `json:"content" yaml:"content"`
	Created    int64   `json:"created" yaml:"created"`
	Up         int     `json:"up" yaml:"up"`
	Down       int     `json:"down" yaml:"down"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

type voteFile struct {
	ID   int64      `json:"id" yaml:"id"`
	Vote model.Vote `json:"vote" yaml:"vote"`
}

// Load reads a thread file. The format is chosen by extension.
func Load(path string) (*Thread, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading thread: %w", err)
	}

	var tf threadFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&tf); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	return tf.thread(), nil
}

func (tf threadFile) thread() *Thread {
	t := &Thread{
		PostID:   tf.PostID,
		OP:       tf.OP,
		Comments: make([]model.Comment, 0, len(tf.Comments)),
		Votes:    make(model.Votes, len(tf.Votes)),
	}
	for _, c := range tf.Comments {
		t.Comments = append(t.Comments, model.Comment{
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
	for _, v := range tf.Votes {
		if v.Vote != model.VoteNeutral {
			t.Votes[v.ID] = v.Vote
		}
	}
	return t
}

// Encode writes t in the JSON thread format.
func Encode(t *Thread) ([]byte, error) {
	tf := threadFile{PostID: t.PostID, OP: t.OP}
	for _, c := range t.Comments {
		tf.Comments = append(tf.Comments, commentFile{
			ID:         c.ID,
			Parent:     c.Parent,
			Name:       c.Name,
			Content:    c.Content,
			Created:    c.Created.Unix(),
			Up:         c.Up,
			Down:       c.Down,
			Confidence: c.Confidence,
		})
	}
	for _, id := range slices.Sorted(maps.Keys(t.Votes)) {
		tf.Votes = append(tf.Votes, voteFile{ID: id, Vote: t.Votes[id]})
	}
	return json.MarshalIndent(tf, "", "  ")
}
