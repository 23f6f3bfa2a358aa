package cli

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sprite-ai/cmtree/internal/model"
	"github.com/sprite-ai/cmtree/internal/source"
	"github.com/sprite-ai/cmtree/internal/store"
	"github.com/sprite-ai/cmtree/internal/tree"
	"github.com/sprite-ai/cmtree/internal/tui"
	"golang.org/x/sync/errgroup"
)

var viewCmd = &cobra.Command{
	Use:   "view FILE",
	Short: "Open a comment thread in the interactive viewer",
	Long: `Open a thread file (JSON or YAML) in the terminal viewer.

Votes cast in the viewer are kept in the local vote store (store.path)
and shown on top of the votes recorded in the file.

Examples:
  cmtree view thread.json
  cmtree view --watch thread.yaml   # reload when the file changes`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().BoolP("watch", "w", false, "reload the thread when the file changes")
	viewCmd.Flags().String("name", "", "viewer name (overrides viewer.name)")
	viewCmd.Flags().Bool("admin", false, "view as an administrator")
}

func runView(cmd *cobra.Command, args []string) error {
	path := args[0]
	thread, err := source.Load(path)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	name := cfg.Viewer.Name
	if n, _ := cmd.Flags().GetString("name"); n != "" {
		name = n
	}
	admin := cfg.Viewer.Admin
	if cmd.Flags().Changed("admin") {
		admin, _ = cmd.Flags().GetBool("admin")
	}

	ctrl := tree.NewController(tree.WithLogger(logger))
	ctrl.SetViewer(name, admin)

	vs := newViewSession(ctrl, st, logger)
	if err := vs.load(thread); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		g.Go(func() error {
			return source.Watch(ctx, path, logger, func(t *source.Thread) {
				if err := vs.load(t); err != nil {
					logger.Warn("reload thread", "path", path, "error", err)
				}
			})
		})
	}
	g.Go(func() error {
		defer cancel()
		err := tui.Run(ctx, ctrl, updates, tui.Options{
			Title: fmt.Sprintf("post %d", thread.PostID),
			Vote:  vs.vote,
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	return g.Wait()
}

// viewSession keeps the viewer's local votes in step with the store and
// the controller.
type viewSession struct {
	ctrl   *tree.Controller
	store  *store.Store
	logger *slog.Logger

	mu       sync.Mutex
	post     int64
	loaded   bool
	op       string
	comments []model.Comment
	server   model.Votes
	local    model.Votes
}

func newViewSession(ctrl *tree.Controller, st *store.Store, logger *slog.Logger) *viewSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &viewSession{
		ctrl:   ctrl,
		store:  st,
		logger: logger,
		local:  make(model.Votes),
	}
}

// load replaces the thread. The file's votes become the baseline and the
// local votes are shown over them.
func (vs *viewSession) load(t *source.Thread) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	server := t.Votes.Complete(t.Comments)
	if vs.loaded && t.PostID == vs.post {
		if t.OP == vs.op && slices.Equal(t.Comments, vs.comments) && maps.Equal(server, vs.server) {
			return nil
		}
	} else {
		local := make(model.Votes)
		if vs.store != nil {
			stored, err := vs.store.Votes(t.PostID)
			if err != nil {
				return fmt.Errorf("reading stored votes: %w", err)
			}
			local = stored
		}
		vs.local = local
		vs.post = t.PostID
		vs.loaded = true
		// Ids are only unique within a post.
		vs.ctrl.Reset()
	}

	vs.op = t.OP
	vs.comments = slices.Clone(t.Comments)
	vs.server = server
	vs.ctrl.SetOP(t.OP)
	vs.ctrl.SetComments(t.Comments, vs.server)
	vs.ctrl.SetVotes(vs.merged())
	vs.logger.Debug("thread loaded", "post", t.PostID, "comments", len(t.Comments), "local_votes", len(vs.local))
	return nil
}

// vote records a vote cast in the viewer.
func (vs *viewSession) vote(id int64, v model.Vote) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.store != nil {
		if err := vs.store.Put(vs.post, id, v); err != nil {
			vs.logger.Warn("storing vote", "post", vs.post, "comment", id, "error", err)
		}
	}
	vs.local[id] = v
	vs.ctrl.SetVotes(vs.merged())
}

// merged overlays local votes on the server votes.
func (vs *viewSession) merged() model.Votes {
	out := vs.server.Clone()
	for id, v := range vs.local {
		out[id] = v
	}
	return out
}
