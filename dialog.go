package main

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abennett/rolltree/pkg/i18n"
	"github.com/abennett/rolltree/pkg/messages"
	"github.com/abennett/rolltree/pkg/rolltree"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#01c5d1"))
	helpStyle  = lipgloss.NewStyle().Faint(true)
)

// dialogModel lets the roller pick modifiers, parts, a bonus and the
// roll mode of an offer.
type dialogModel struct {
	loc   *i18n.Localizer
	offer messages.Offer

	table   table.Model
	bonus   textinput.Model
	mode    int
	enabled map[string]bool
	parts   []messages.PartState

	button string
}

func newDialogModel(offer messages.Offer, loc *i18n.Localizer) *dialogModel {
	m := &dialogModel{
		loc:     loc,
		offer:   offer,
		enabled: make(map[string]bool, len(offer.Modifiers)),
		parts:   append([]messages.PartState(nil), offer.Parts...),
	}
	for _, mod := range offer.Modifiers {
		m.enabled[mod.Name] = mod.Enabled
	}
	for idx, mode := range rolltree.RollModes {
		if string(mode) == offer.RollMode {
			m.mode = idx
		}
	}

	m.bonus = textinput.New()
	m.bonus.Placeholder = "+2"
	m.bonus.Prompt = loc.Format("dialog.bonus", nil) + ": "

	m.table = table.New(
		table.WithColumns([]table.Column{
			{Title: loc.Format("dialog.enabled", nil), Width: 4},
			{Title: "", Width: 10},
			{Title: "", Width: 16},
			{Title: "", Width: 24},
		}),
		table.WithFocused(true),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(lipgloss.Color("#01c5d1"))
	m.table.SetStyles(s)
	m.refreshRows()
	return m
}

func (m *dialogModel) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.offer.Modifiers)+len(m.parts))
	for _, mod := range m.offer.Modifiers {
		rows = append(rows, table.Row{check(m.enabled[mod.Name]), m.loc.Format("dialog.modifier", nil), mod.Name, mod.Formula})
	}
	for idx, part := range m.parts {
		name := fmt.Sprintf("#%d", idx+1)
		if part.IsPrimary {
			name += " *"
		}
		rows = append(rows, table.Row{check(part.Enabled), m.loc.Format("dialog.part", nil), name, part.Formula})
	}
	return rows
}

func (m *dialogModel) refreshRows() {
	rows := m.rows()
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
}

func check(on bool) string {
	if on {
		return "✅"
	}
	return ""
}

// toggle flips the modifier or part under the cursor.
func (m *dialogModel) toggle(row int) {
	if row < 0 {
		return
	}
	if row < len(m.offer.Modifiers) {
		name := m.offer.Modifiers[row].Name
		m.enabled[name] = !m.enabled[name]
		m.refreshRows()
		return
	}
	row -= len(m.offer.Modifiers)
	if row < len(m.parts) {
		m.parts[row].Enabled = !m.parts[row].Enabled
		m.refreshRows()
	}
}

func (m *dialogModel) rollMode() rolltree.RollMode {
	return rolltree.RollModes[m.mode]
}

func (m *dialogModel) Init() tea.Cmd {
	return nil
}

func (m *dialogModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.bonus.Focused() {
		switch key.String() {
		case "enter", "tab", "esc":
			m.bonus.Blur()
			m.table.Focus()
			return m, nil
		}
		var cmd tea.Cmd
		m.bonus, cmd = m.bonus.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.button = rolltree.ButtonCancel
		return m, tea.Quit
	case "enter":
		m.button = m.offer.DefaultButton
		if m.button == "" {
			m.button = rolltree.ButtonRoll
		}
		return m, tea.Quit
	case " ":
		m.toggle(m.table.Cursor())
		return m, nil
	case "tab":
		m.table.Blur()
		return m, m.bonus.Focus()
	case "m":
		m.mode = (m.mode + 1) % len(rolltree.RollModes)
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *dialogModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.offer.Title) + "\n")
	if m.offer.MainDie != "" {
		b.WriteString(m.loc.Format("dialog.main_die", map[string]any{"die": m.offer.MainDie}) + "\n")
	}
	b.WriteString(baseStyle.Render(m.table.View()) + "\n")
	b.WriteString(m.bonus.View() + "\n")
	b.WriteString(m.loc.Format("dialog.roll_mode", map[string]any{"mode": m.rollMode()}) + "\n")
	b.WriteString(helpStyle.Render(m.loc.Format("dialog.help", nil)) + "\n")
	return b.String()
}

// Selection is the choice made once the program has quit. A dialog that
// was never confirmed is a cancel.
func (m *dialogModel) Selection() messages.Selection {
	button := m.button
	if button == "" {
		button = rolltree.ButtonCancel
	}
	return messages.Selection{
		Button:   button,
		RollMode: string(m.rollMode()),
		Bonus:    strings.TrimSpace(m.bonus.Value()),
		Enabled:  maps.Clone(m.enabled),
		Parts:    append([]messages.PartState(nil), m.parts...),
	}
}

func runDialog(ctx context.Context, offer messages.Offer, loc *i18n.Localizer) (messages.Selection, error) {
	final, err := tea.NewProgram(newDialogModel(offer, loc), tea.WithContext(ctx)).Run()
	if err != nil {
		return messages.Selection{}, err
	}
	return final.(*dialogModel).Selection(), nil
}

// teaDialog asks for the selection in the terminal.
type teaDialog struct {
	loc  *i18n.Localizer
	mode rolltree.RollMode
}

func (d teaDialog) Select(ctx context.Context, req rolltree.DialogRequest) (rolltree.Selection, error) {
	sel, err := runDialog(ctx, messages.NewOffer(req, d.mode), d.loc)
	if err != nil {
		return rolltree.Selection{}, err
	}
	return sel.RollSelection(req.Parts), nil
}
