// Package tui implements the Bubble Tea comment thread viewer.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sprite-ai/cmtree/internal/model"
	"github.com/sprite-ai/cmtree/internal/tree"
)

// Controller receives the viewer's collapse and highlight requests.
type Controller interface {
	Toggle(id int64)
	Select(id int64)
}

// VoteFunc is called when the viewer votes on a comment.
type VoteFunc func(commentID int64, v model.Vote)

// Options configures the viewer.
type Options struct {
	Title string
	Vote  VoteFunc
	Now   func() time.Time
}

// itemsMsg carries a freshly linearized thread.
type itemsMsg []tree.Item

// closedMsg is sent when the item stream ends.
type closedMsg struct{}

// Model is the top-level Bubble Tea model for the thread viewer.
type Model struct {
	ctrl    Controller
	updates <-chan []tree.Item
	opts    Options

	items  []tree.Item
	loaded bool

	// UI state
	width  int
	height int

	cursor   int   // index into items
	cursorID int64 // comment under the cursor, kept across updates
	scroll   int   // first item shown

	showHelp bool
}

// New creates a viewer reading item lists from updates.
func New(ctrl Controller, updates <-chan []tree.Item, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Model{
		ctrl:    ctrl,
		updates: updates,
		opts:    opts,
	}
}

func waitForItems(updates <-chan []tree.Item) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		items, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return itemsMsg(items)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForItems(m.updates)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ensureVisible()
		return m, nil

	case itemsMsg:
		m.setItems(msg)
		return m, waitForItems(m.updates)

	case closedMsg:
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp

		case key.Matches(msg, keys.Down):
			m.moveTo(m.cursor + 1)

		case key.Matches(msg, keys.Up):
			m.moveTo(m.cursor - 1)

		case key.Matches(msg, keys.Top):
			m.moveTo(0)

		case key.Matches(msg, keys.Bottom):
			m.moveTo(len(m.items) - 1)

		case key.Matches(msg, keys.Parent):
			m.jumpToParent()

		case key.Matches(msg, keys.Toggle):
			if it, ok := m.current(); ok && it.HasChildren && m.ctrl != nil {
				m.ctrl.Toggle(it.Comment.ID)
			}

		case key.Matches(msg, keys.Select):
			if it, ok := m.current(); ok && m.ctrl != nil {
				if it.Selected {
					m.ctrl.Select(0)
				} else {
					m.ctrl.Select(it.Comment.ID)
				}
			}

		case key.Matches(msg, keys.VoteUp):
			m.vote(model.VoteUp)

		case key.Matches(msg, keys.VoteDown):
			m.vote(model.VoteDown)
		}
	}

	return m, nil
}

func (m *Model) setItems(items []tree.Item) {
	m.items = items
	m.loaded = true

	// Keep the cursor on the same comment if it is still visible.
	idx := -1
	for i, it := range items {
		if it.Comment.ID == m.cursorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = m.cursor
	}
	m.moveTo(idx)
}

func (m *Model) moveTo(idx int) {
	if idx >= len(m.items) {
		idx = len(m.items) - 1
	}
	if idx < 0 {
		idx = 0
	}
	m.cursor = idx
	if it, ok := m.current(); ok {
		m.cursorID = it.Comment.ID
	}
	m.ensureVisible()
}

func (m Model) current() (tree.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return tree.Item{}, false
	}
	return m.items[m.cursor], true
}

func (m *Model) jumpToParent() {
	it, ok := m.current()
	if !ok || it.Comment.Parent == 0 {
		return
	}
	for i := m.cursor - 1; i >= 0; i-- {
		if m.items[i].Comment.ID == it.Comment.Parent {
			m.moveTo(i)
			return
		}
	}
}

// vote casts v on the current comment; voting the same way twice takes
// the vote back.
func (m Model) vote(v model.Vote) {
	it, ok := m.current()
	if !ok || m.opts.Vote == nil {
		return
	}
	if it.Vote == v {
		v = model.VoteNeutral
	}
	m.opts.Vote(it.Comment.ID, v)
}

// bodyHeight is the number of lines available for comments.
func (m Model) bodyHeight() int {
	h := m.height - 5 // status bar, title, borders
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) innerWidth() int {
	w := m.width - 4 // borders + padding
	if w < 10 {
		w = 10
	}
	return w
}

// ensureVisible scrolls so that the whole cursor block fits on screen
// where possible.
func (m *Model) ensureVisible() {
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	}
	if m.height == 0 || len(m.items) == 0 {
		return
	}
	now := m.opts.Now()
	for m.scroll < m.cursor {
		used := 0
		for i := m.scroll; i <= m.cursor; i++ {
			used += len(renderItem(m.items[i], m.innerWidth(), now, false))
		}
		if used <= m.bodyHeight() {
			break
		}
		m.scroll++
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	body := m.renderThread()
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatusBar())
}

func (m Model) renderThread() string {
	innerHeight := m.height - 3
	var b strings.Builder

	title := m.opts.Title
	if title == "" {
		title = "Comments"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteByte('\n')

	switch {
	case !m.loaded:
		b.WriteString(metaStyle.Render("Loading comments…"))
	case len(m.items) == 0:
		b.WriteString(metaStyle.Render("No comments"))
	default:
		now := m.opts.Now()
		var lines []string
		for i := m.scroll; i < len(m.items) && len(lines) < m.bodyHeight(); i++ {
			lines = append(lines, renderItem(m.items[i], m.innerWidth(), now, i == m.cursor)...)
		}
		if len(lines) > m.bodyHeight() {
			lines = lines[:m.bodyHeight()]
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	return threadViewStyle.Width(m.width - 2).Height(innerHeight).Render(b.String())
}

func (m Model) renderStatusBar() string {
	left := " No comments"
	if len(m.items) > 0 {
		left = fmt.Sprintf(" Comment %d/%d", m.cursor+1, len(m.items))
		if it, ok := m.current(); ok && it.Collapsed {
			left += fmt.Sprintf("  (%d hidden)", it.HiddenCount)
		}
	}

	right := "? help "

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("cmtree: Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for _, binding := range []key.Binding{
		keys.Up, keys.Down, keys.Top, keys.Bottom, keys.Parent,
		keys.Toggle, keys.VoteUp, keys.VoteDown, keys.Select,
		keys.Help, keys.Quit,
	} {
		h := binding.Help()
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(h.Key),
			h.Desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))

	return b.String()
}

// Run starts the viewer and blocks until the user quits or ctx is done.
func Run(ctx context.Context, ctrl Controller, updates <-chan []tree.Item, opts Options) error {
	m := New(ctrl, updates, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
