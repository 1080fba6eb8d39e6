package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abennett/rolltree/pkg/client"
	"github.com/abennett/rolltree/pkg/i18n"
	"github.com/abennett/rolltree/pkg/messages"
)

var ErrClosedBeforeOffer = errors.New("connection closed before an offer arrived")

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	Align(lipgloss.Center)

var columns = []table.Column{
	{Title: "User", Width: 10},
	{Title: "Result", Width: 6},
	{Title: "Roll", Width: 30},
}

// roomView shows the outcome of the user's roll and the room's results
// as they come in.
type roomView struct {
	client  *client.Client
	loc     *i18n.Localizer
	table   table.Model
	outcome *messages.Outcome
}

func newRoomView(c *client.Client, loc *i18n.Localizer) *roomView {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(0),
		table.WithFocused(false),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(lipgloss.Color("#01c5d1"))
	s.Selected = s.Selected.Foreground(lipgloss.NoColor{}).Bold(false)
	t.SetStyles(s)
	v := &roomView{
		client: c,
		loc:    loc,
		table:  t,
	}
	if outcome, ok := c.Outcome(); ok {
		v.outcome = &outcome
	}
	if room := c.Room(); len(room.Rolls) > 0 {
		v.setRolls(room.Rolls)
	}
	return v
}

// closedMsg is sent once the connection is gone.
type closedMsg struct{}

func (v *roomView) readUpdate() tea.Msg {
	update := v.client.ReadUpdate()
	if update == nil {
		return closedMsg{}
	}
	return update
}

func (v *roomView) Init() tea.Cmd {
	return v.readUpdate
}

func formatTotal(total float64) string {
	return strconv.FormatFloat(total, 'f', -1, 64)
}

func resultsToRows(rrs []messages.RollResult, cancelled string) []table.Row {
	rows := make([]table.Row, len(rrs))
	for idx, rr := range rrs {
		if rr.Cancelled {
			rows[idx] = table.Row{rr.User, "", cancelled}
			continue
		}
		rows[idx] = table.Row{rr.User, formatTotal(rr.Result), rr.FinalRoll}
	}
	return rows
}

func (v *roomView) setRolls(rrs []messages.RollResult) {
	v.table.SetHeight(len(rrs) + 1)
	v.table.SetRows(resultsToRows(rrs, v.loc.Format("result.cancelled", nil)))
}

func (v *roomView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case closedMsg:
		slog.Debug("connection closed")
		return v, tea.Quit
	case []messages.RollResult:
		slog.Debug("roll result")
		v.setRolls(msg)
		return v, v.readUpdate
	case messages.Outcome:
		v.outcome = &msg
		return v, v.readUpdate
	case messages.Offer:
		return v, v.readUpdate
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			err := v.client.Close()
			if err != nil {
				slog.Error("failed to close client", "error", err)
			}
			return v, tea.Quit
		}
	case error:
		slog.Error("exiting for error", "error", msg)
		return v, tea.Quit
	default:
		slog.Debug("unsupported message", "msg", msg)
	}
	return v, nil
}

func (v *roomView) outcomeView() string {
	if v.outcome == nil {
		return ""
	}
	if v.outcome.Error != "" {
		return v.outcome.Error + "\n"
	}
	if v.outcome.Cancelled {
		return v.loc.Format("result.cancelled", nil) + "\n"
	}
	var b strings.Builder
	for _, part := range v.outcome.Rolls {
		if part.Label != "" {
			b.WriteString(part.Label + " ")
		}
		fmt.Fprintf(&b, "%s => %s\n", part.Formula, resultStyle.Render(formatTotal(part.Total)))
	}
	return b.String()
}

func (v *roomView) View() string {
	slog.Debug("rerendering view")
	return v.outcomeView() + baseStyle.Render(v.table.View()) + "\n"
}

// runRemote joins the room, answers its offer with the terminal dialog
// and follows the room until the user quits.
func runRemote(ctx context.Context, c *client.Client, loc *i18n.Localizer) error {
	if err := c.Init(); err != nil {
		return err
	}
	var offer messages.Offer
	for {
		update := c.ReadUpdate()
		if update == nil {
			return ErrClosedBeforeOffer
		}
		if o, ok := update.(messages.Offer); ok {
			offer = o
			break
		}
	}

	sel, err := runDialog(ctx, offer, loc)
	if err != nil {
		_ = c.Close()
		return err
	}
	if err := c.SubmitSelection(sel); err != nil {
		return err
	}

	_, err = tea.NewProgram(newRoomView(c, loc), tea.WithContext(ctx)).Run()
	return err
}
