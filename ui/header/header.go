package header

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/andstatus/ui/common"
	"github.com/deemkeen/andstatus/util"
)

type Model struct {
	Width    int
	Title    string
	Accounts int
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) View() string {
	return GetHeaderStyle(m.Title, m.Accounts, m.Width)
}

// GetHeaderStyle renders three boxes: title, version, account count.
// Each box adds 4 chars of padding and border to its content width.
func GetHeaderStyle(title string, accounts, width int) string {
	availableWidth := width - 12
	if availableWidth < 40 {
		availableWidth = 40
	}
	titleWidth := availableWidth / 3
	versionWidth := availableWidth / 3
	accountsWidth := availableWidth - titleWidth - versionWidth

	box := func(s string, w int, bg lipgloss.Color) string {
		return lipgloss.
			NewStyle().
			SetString(s).
			Align(lipgloss.Left).
			Background(bg).
			Padding(1).
			Height(2).
			Width(w).
			Border(lipgloss.NormalBorder(), true, false, true, false).
			BorderForeground(lipgloss.Color(common.COLOR_MAGENTA)).
			String()
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		box(title, titleWidth, lipgloss.Color(common.COLOR_PURPLE)),
		box(util.GetNameAndVersion(), versionWidth, lipgloss.Color(common.COLOR_GREY)),
		box(fmt.Sprintf("my accounts: %d", accounts), accountsWidth, lipgloss.Color(common.COLOR_MAGENTA)),
	)
}
