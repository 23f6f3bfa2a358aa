package tree

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sprite-ai/cmtree/internal/model"
)

// Controller holds the view state of one comment thread and republishes
// the linearized thread whenever that state changes.
//
// Mutations may be called from any goroutine. Each one derives a new
// Input from the current one and wakes the worker started by Run, which
// always linearizes the newest snapshot. Results for snapshots that were
// replaced while being computed are dropped.
type Controller struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   Input
	version uint64

	wake chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan []Item
	nextSub int
	last    []Item
	hasLast bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now, which decides score visibility.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates a Controller with no data. Nothing is published
// until SetComments is called.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		logger: slog.Default(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		subs:   make(map[int]chan []Item),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current input.
func (c *Controller) Snapshot() Input {
	in, _ := c.snapshot()
	return in
}

func (c *Controller) snapshot() (Input, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.version
}

// update replaces the state with fn's result. fn reports false when the
// state would not change, in which case nothing is recomputed.
func (c *Controller) update(fn func(Input) (Input, bool)) {
	c.mu.Lock()
	next, changed := fn(c.state)
	if !changed {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.version++
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// SetComments replaces the thread and the viewer's votes on it. The same
// comments and votes as the current ones change nothing.
func (c *Controller) SetComments(comments []model.Comment, votes model.Votes) {
	c.update(func(in Input) (Input, bool) {
		if in.Valid && in.Comments != nil && slices.Equal(in.Comments, comments) &&
			in.CurrentVotes != nil && maps.Equal(in.CurrentVotes, votes) {
			return in, false
		}
		return in.WithComments(comments, votes), true
	})
}

// Reset forgets the thread together with its collapse state, selection,
// OP and vote baseline, as when another post is opened. The viewer is
// kept. Nothing is published until SetComments is called again.
func (c *Controller) Reset() {
	c.update(func(in Input) (Input, bool) {
		return Input{SelfName: in.SelfName, IsAdmin: in.IsAdmin}, true
	})
}

// SetVotes replaces the viewer's current votes.
func (c *Controller) SetVotes(votes model.Votes) {
	c.update(func(in Input) (Input, bool) {
		if in.CurrentVotes != nil && maps.Equal(in.CurrentVotes, votes) {
			return in, false
		}
		return in.WithVotes(votes), true
	})
}

// Collapse hides the replies below id.
func (c *Controller) Collapse(id int64) {
	c.update(func(in Input) (Input, bool) {
		if in.IsCollapsed(id) {
			return in, false
		}
		return in.WithCollapsed(id), true
	})
}

// Expand shows the replies below id again.
func (c *Controller) Expand(id int64) {
	c.update(func(in Input) (Input, bool) {
		if !in.IsCollapsed(id) {
			return in, false
		}
		return in.WithExpanded(id), true
	})
}

// Toggle collapses id if it is expanded and expands it otherwise.
func (c *Controller) Toggle(id int64) {
	c.update(func(in Input) (Input, bool) {
		if in.IsCollapsed(id) {
			return in.WithExpanded(id), true
		}
		return in.WithCollapsed(id), true
	})
}

// Select highlights id. Zero clears the selection.
func (c *Controller) Select(id int64) {
	c.update(func(in Input) (Input, bool) {
		if in.Selected == id {
			return in, false
		}
		return in.WithSelected(id), true
	})
}

// SetViewer sets the viewer's name and admin flag.
func (c *Controller) SetViewer(self string, admin bool) {
	c.update(func(in Input) (Input, bool) {
		if in.SelfName == self && in.IsAdmin == admin {
			return in, false
		}
		return in.WithViewer(self, admin), true
	})
}

// SetOP sets the name of the post's author.
func (c *Controller) SetOP(name string) {
	c.update(func(in Input) (Input, bool) {
		if in.OPName == name {
			return in, false
		}
		return in.WithOP(name), true
	})
}

// Clear drops all comments, e.g. when the viewer navigates away.
func (c *Controller) Clear() {
	c.update(func(in Input) (Input, bool) {
		if in.Comments == nil {
			return in, false
		}
		return in.Cleared(), true
	})
}

// Subscribe returns a channel that receives every published item list.
// An unread list is replaced by a newer one. If a list was already
// published it is delivered immediately. cancel closes the channel.
func (c *Controller) Subscribe() (<-chan []Item, func()) {
	ch := make(chan []Item, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	if c.hasLast {
		ch <- c.last
	}
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (c *Controller) publish(items []Item) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.last = items
	c.hasLast = true
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- items
	}
}

// Run linearizes snapshots as they change until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	var done uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
		}

		in, version := c.snapshot()
		if !in.Valid || version == done {
			continue
		}

		start := time.Now()
		items := Linearize(in, c.now())
		linearizeTotal.Inc()
		linearizeDuration.Observe(time.Since(start).Seconds())
		linearizeItems.Observe(float64(len(items)))

		if _, latest := c.snapshot(); latest != version {
			supersededTotal.Inc()
			c.logger.Debug("linearization superseded", "version", version, "latest", latest)
			continue
		}

		done = version
		c.logger.Debug("thread linearized",
			"version", version,
			"comments", len(in.Comments),
			"items", len(items),
			"elapsed", time.Since(start))
		c.publish(items)
	}
}
