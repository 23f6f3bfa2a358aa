package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/cmtree/internal/model"
	"github.com/sprite-ai/cmtree/internal/source"
	"github.com/sprite-ai/cmtree/internal/store"
	"github.com/sprite-ai/cmtree/internal/tree"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const threadJSON = `{
  "post_id": 42,
  "op": "alice",
  "comments": [
    {"id": 1, "parent": 0, "name": "alice", "content": "first", "created": 1772359200, "up": 4, "down": 0, "confidence": 0.5},
    {"id": 2, "parent": 1, "name": "bob", "content": "reply low", "created": 1772359200, "up": 1, "down": 0, "confidence": 0.3},
    {"id": 3, "parent": 1, "name": "carol", "content": "reply high\n` + "```go" + `\nfunc main() {}\n` + "```" + `", "created": 1772359200, "up": 2, "down": 1, "confidence": 0.9},
    {"id": 4, "parent": 0, "name": "dave", "content": "second", "created": 1772359200, "up": 0, "down": 0, "confidence": 0.1}
  ],
  "votes": [{"id": 3, "vote": "up"}]
}`

// runCLI executes the root command with fresh flag state and returns its
// output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	cfgPath := filepath.Join(t.TempDir(), "cmtree.yaml")
	require.NoError(t, os.WriteFile(cfgPath, nil, 0o600))

	orig := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = orig })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeThread(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thread.json")
	require.NoError(t, os.WriteFile(path, []byte(threadJSON), 0o600))
	return path
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, want := range []string{"view", "render", "serve", "version"} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	// version vars are set via ldflags; in tests they have their defaults
	if version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", version)
	}

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cmtree dev (commit none, built unknown)\n", out)
}

func TestRenderText(t *testing.T) {
	out, err := runCLI(t, "render", writeThread(t))
	require.NoError(t, err)

	assert.Contains(t, out, "post 42: 4 comment(s), 4 shown")
	assert.Contains(t, out, "alice [OP] · 4 points · 2 hours ago")
	assert.Contains(t, out, "│ ")
	assert.Contains(t, out, "func main() {}")

	// OP first among roots, then confidence descending among siblings.
	order := []string{"alice", "carol", "bob", "dave"}
	last := -1
	for _, name := range order {
		idx := strings.Index(out, name+" ")
		require.Greater(t, idx, last, "%s out of order in:\n%s", name, out)
		last = idx
	}
}

func TestRenderJSONCollapsed(t *testing.T) {
	out, err := runCLI(t, "render", "-f", "json", "--collapse", "1", "--select", "4", writeThread(t))
	require.NoError(t, err)

	var got struct {
		PostID int64 `json:"post_id"`
		Total  int   `json:"total"`
		Items  []struct {
			ID          int64  `json:"id"`
			Depth       int    `json:"depth"`
			Vote        string `json:"vote"`
			Collapsed   bool   `json:"collapsed"`
			HiddenCount int    `json:"hidden_count"`
			Selected    bool   `json:"selected"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, int64(42), got.PostID)
	assert.Equal(t, 4, got.Total)
	require.Len(t, got.Items, 2)
	assert.Equal(t, int64(1), got.Items[0].ID)
	assert.True(t, got.Items[0].Collapsed)
	assert.Equal(t, 2, got.Items[0].HiddenCount)
	assert.Equal(t, int64(4), got.Items[1].ID)
	assert.True(t, got.Items[1].Selected)
}

func TestRenderJSONVotes(t *testing.T) {
	out, err := runCLI(t, "render", "--format", "json", writeThread(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"vote": "up"`)
	assert.NotContains(t, out, "hidden_count")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := runCLI(t, "render", "-f", "markdown", writeThread(t))
	require.NoError(t, err)

	assert.Contains(t, out, "## Post 42")
	assert.Contains(t, out, "- alice [OP]")
	assert.Contains(t, out, "  - carol")
	assert.Contains(t, out, "`func main() {}`")
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := runCLI(t, "render", "-f", "html", writeThread(t))
	assert.ErrorContains(t, err, "unknown format")
}

func TestRenderMissingFile(t *testing.T) {
	_, err := runCLI(t, "render", filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runCLI(t, "--log-level", "loud", "version")
	assert.Error(t, err)
}

func TestViewSessionOverlaysStoredVotes(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "votes.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Put(42, 2, model.VoteDown))

	thread, err := source.Load(writeThread(t))
	require.NoError(t, err)

	ctrl := tree.NewController()
	vs := newViewSession(ctrl, st, nil)
	require.NoError(t, vs.load(thread))

	in := ctrl.Snapshot()
	assert.Equal(t, model.VoteDown, in.CurrentVotes.Get(2))
	assert.Equal(t, model.VoteUp, in.CurrentVotes.Get(3))
	assert.Equal(t, model.VoteNeutral, in.BaseVotes.Get(2))

	// Taking back the file's vote is kept locally and stored.
	vs.vote(3, model.VoteNeutral)
	vs.vote(1, model.VoteUp)
	in = ctrl.Snapshot()
	assert.Equal(t, model.VoteNeutral, in.CurrentVotes.Get(3))
	assert.Equal(t, model.VoteUp, in.BaseVotes.Get(3))

	stored, err := st.Votes(42)
	require.NoError(t, err)
	assert.Equal(t, model.Votes{1: model.VoteUp, 2: model.VoteDown}, stored)

	// A reload of the same post keeps the local votes.
	require.NoError(t, vs.load(thread))
	assert.Equal(t, model.VoteUp, ctrl.Snapshot().CurrentVotes.Get(1))
}

func TestViewSessionNewPostStartsClean(t *testing.T) {
	thread, err := source.Load(writeThread(t))
	require.NoError(t, err)

	ctrl := tree.NewController()
	ctrl.SetViewer("bob", false)
	vs := newViewSession(ctrl, nil, nil)
	require.NoError(t, vs.load(thread))
	vs.vote(4, model.VoteUp)
	ctrl.Collapse(1)
	ctrl.Select(3)

	other := &source.Thread{
		PostID: 43,
		OP:     "erin",
		Comments: []model.Comment{
			{ID: 1, Name: "erin", Content: "root"},
			{ID: 4, Name: "gina", Content: "other root", Up: 1},
		},
		Votes: model.Votes{4: model.VoteUp},
	}
	require.NoError(t, vs.load(other))

	in := ctrl.Snapshot()
	assert.False(t, in.IsCollapsed(1))
	assert.Zero(t, in.Selected)
	assert.Equal(t, "erin", in.OPName)
	assert.Equal(t, "bob", in.SelfName)
	assert.Equal(t, model.VoteUp, in.BaseVotes.Get(4))
	assert.Equal(t, model.VoteUp, in.CurrentVotes.Get(4))
	assert.Equal(t, model.VoteNeutral, in.BaseVotes.Get(1))
	assert.Equal(t, 1, tree.Score(other.Comments[1], in.CurrentVotes.Get(4), in.BaseVotes.Get(4)))
}

func TestViewSessionSameThreadReloadIsNoop(t *testing.T) {
	thread, err := source.Load(writeThread(t))
	require.NoError(t, err)

	ctrl := tree.NewController()
	vs := newViewSession(ctrl, nil, nil)
	require.NoError(t, vs.load(thread))
	vs.vote(2, model.VoteDown)
	ctrl.Collapse(3)
	before := ctrl.Snapshot()

	again, err := source.Load(writeThread(t))
	require.NoError(t, err)
	require.NoError(t, vs.load(again))

	assert.Equal(t, before, ctrl.Snapshot())
}
