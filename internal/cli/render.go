package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/sprite-ai/cmtree/internal/markup"
	"github.com/sprite-ai/cmtree/internal/source"
	"github.com/sprite-ai/cmtree/internal/tree"
	"github.com/sprite-ai/cmtree/internal/tui"
)

// now is replaced in tests.
var now = time.Now

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Print a linearized thread (non-interactive)",
	Long: `Linearize a thread file once and print it. Useful for scripts and
for checking how a thread will be laid out.

Examples:
  cmtree render thread.json
  cmtree render -f markdown --collapse 12,40 thread.yaml
  cmtree render -f json thread.json | jq '.items[].depth'`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
	renderCmd.Flags().Int64Slice("collapse", nil, "comment ids to collapse")
	renderCmd.Flags().Int64("select", 0, "comment id to highlight")
}

func runRender(cmd *cobra.Command, args []string) error {
	thread, err := source.Load(args[0])
	if err != nil {
		return err
	}

	collapse, _ := cmd.Flags().GetInt64Slice("collapse")
	selected, _ := cmd.Flags().GetInt64("select")

	in := tree.Input{}.
		WithComments(thread.Comments, thread.Votes).
		WithOP(thread.OP).
		WithViewer(cfg.Viewer.Name, cfg.Viewer.Admin).
		WithSelected(selected).
		WithCollapsedIDs(collapse...)

	t := now()
	items := tree.Linearize(in, t)
	out := cmd.OutOrStdout()

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		return outputJSON(out, thread, items)
	case "markdown":
		return outputMarkdown(out, thread, items, t)
	case "text":
		return outputText(out, thread, items, t)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// headline is the one-line summary of a comment shared by the text and
// markdown formats.
func headline(it tree.Item, t time.Time) string {
	var b strings.Builder
	b.WriteString(it.Comment.Name)
	if it.OPBadge {
		b.WriteString(" [OP]")
	}
	fmt.Fprintf(&b, " · %s · %s", tui.ScoreText(it), tui.Age(it, t))
	if it.Collapsed {
		fmt.Fprintf(&b, " · +%d hidden", it.HiddenCount)
	}
	return b.String()
}

func outputText(w io.Writer, thread *source.Thread, items []tree.Item, t time.Time) error {
	fmt.Fprintf(w, "post %d: %d comment(s), %d shown\n\n", thread.PostID, len(thread.Comments), len(items))

	for _, it := range items {
		guide := tui.Guide(it)
		sel := " "
		if it.Selected {
			sel = ">"
		}
		fmt.Fprintf(w, "%s%s%s %s\n", sel, guide, tui.Marker(it), headline(it, t))
		if it.Collapsed {
			continue
		}
		for _, line := range markup.Render(it.Comment.Content) {
			fmt.Fprintf(w, " %s  %s\n", guide, line.Plain())
		}
	}
	return nil
}

func outputJSON(w io.Writer, thread *source.Thread, items []tree.Item) error {
	type jsonItem struct {
		ID           int64  `json:"id"`
		Parent       int64  `json:"parent"`
		Name         string `json:"name"`
		Content      string `json:"content"`
		Created      int64  `json:"created"`
		Depth        int    `json:"depth"`
		Spacings     uint64 `json:"spacings"`
		HasChildren  bool   `json:"has_children"`
		Vote         string `json:"vote"`
		Score        int    `json:"score"`
		ScoreVisible bool   `json:"score_visible"`
		OP           bool   `json:"op,omitempty"`
		Collapsed    bool   `json:"collapsed,omitempty"`
		HiddenCount  int    `json:"hidden_count,omitempty"`
		Selected     bool   `json:"selected,omitempty"`
	}

	type jsonOutput struct {
		PostID int64      `json:"post_id"`
		Total  int        `json:"total"`
		Items  []jsonItem `json:"items"`
	}

	out := jsonOutput{
		PostID: thread.PostID,
		Total:  len(thread.Comments),
		Items:  make([]jsonItem, 0, len(items)),
	}
	for _, it := range items {
		out.Items = append(out.Items, jsonItem{
			ID:           it.Comment.ID,
			Parent:       it.Comment.Parent,
			Name:         it.Comment.Name,
			Content:      it.Comment.Content,
			Created:      it.Comment.Created.Unix(),
			Depth:        it.Depth,
			Spacings:     it.Spacings,
			HasChildren:  it.HasChildren,
			Vote:         it.Vote.String(),
			Score:        it.Score,
			ScoreVisible: it.ScoreVisible,
			OP:           it.OPBadge,
			Collapsed:    it.Collapsed,
			HiddenCount:  it.HiddenCount,
			Selected:     it.Selected,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputMarkdown(w io.Writer, thread *source.Thread, items []tree.Item, t time.Time) error {
	fmt.Fprintf(w, "## Post %d\n\n", thread.PostID)
	fmt.Fprintf(w, "**%d** comment(s), **%d** shown\n\n", len(thread.Comments), len(items))

	if len(items) == 0 {
		fmt.Fprintln(w, "No comments.")
		return nil
	}

	for _, it := range items {
		indent := strings.Repeat("  ", it.Depth-1)
		head := headline(it, t)
		if it.Selected {
			head = "**" + head + "**"
		}
		fmt.Fprintf(w, "%s- %s\n", indent, head)
		if it.Collapsed {
			continue
		}
		for _, line := range markup.Render(it.Comment.Content) {
			text := line.Plain()
			if line.Code {
				text = "`" + text + "`"
			}
			fmt.Fprintf(w, "%s  %s\n", indent, text)
		}
	}
	return nil
}
