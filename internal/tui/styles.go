package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	threadViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true).
			Padding(0, 0, 1, 0)

	guideStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	// Comment header
	authorStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Bold(true)

	opBadgeStyle = lipgloss.NewStyle().
			Foreground(colorOrange).
			Bold(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	scoreStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	voteUpStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	voteDownStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	hiddenStyle = lipgloss.NewStyle().
			Foreground(colorPurple)

	// Rows
	cursorStyle = lipgloss.NewStyle().
			Background(colorHighlight)

	selectedMarkStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true)

	contentStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	codeStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	// Help
	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)
