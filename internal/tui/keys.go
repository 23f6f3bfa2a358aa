package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Parent   key.Binding
	Toggle   key.Binding
	VoteUp   key.Binding
	VoteDown key.Binding
	Select   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "first comment"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "last comment"),
	),
	Parent: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "parent"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter/space", "collapse/expand"),
	),
	VoteUp: key.NewBinding(
		key.WithKeys("u", "+"),
		key.WithHelp("u/+", "upvote"),
	),
	VoteDown: key.NewBinding(
		key.WithKeys("d", "-"),
		key.WithHelp("d/-", "downvote"),
	),
	Select: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "highlight"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
