package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playsync/internal/resilience"
)

var _ tea.Model = (*RecoveryModel)(nil)

// RecoveryModel presents a failure record with its recommended actions and
// lets the user pick one. It never performs the chosen effect.
type RecoveryModel struct {
	record  *resilience.Record
	actions []resilience.Action
	cursor  int
	chosen  *resilience.Action
	done    bool
	help    help.Model
	keys    keyMap
	width   int
}

// NewRecoveryModel builds a prompt for rec using the actions in rec's recommendation.
func NewRecoveryModel(rec *resilience.Record, rcm resilience.Recommendation) *RecoveryModel {
	return &RecoveryModel{
		record:  rec,
		actions: rcm.Actions(),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

func (m *RecoveryModel) Init() tea.Cmd { return nil }

// Update handles incoming messages and updates the model state.
func (m *RecoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.down):
			if m.cursor < len(m.actions)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.choose):
			return m.choose(m.cursor)
		default:
			// 1-based shortcuts
			if s := msg.String(); len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
				if i := int(s[0] - '1'); i < len(m.actions) {
					return m.choose(i)
				}
			}
		}
	}
	return m, nil
}

func (m *RecoveryModel) choose(i int) (tea.Model, tea.Cmd) {
	action := m.actions[i]
	m.cursor = i
	m.chosen = &action
	m.done = true
	return m, tea.Quit
}

// View renders the failure headline, the action menu and contextual help.
func (m *RecoveryModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	kind := resilience.KindUnknown
	message := resilience.DefaultUserMessage(kind)
	if m.record != nil {
		kind = m.record.Kind()
		message = m.record.UserMessage()
	}

	b.WriteString(styles.title.Render("Something went wrong"))
	b.WriteString("\n")
	b.WriteString(styles.ForKind(kind).Render(message))
	b.WriteString("\n")
	if m.record != nil {
		if d, ok := m.record.RetryAfter(); ok {
			b.WriteString(styles.help.Render(fmt.Sprintf("Retry after %s", d.Round(time.Second))))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	for i, a := range m.actions {
		line := fmt.Sprintf("%d. %s", i+1, a.Label)
		if i == m.cursor {
			b.WriteString(styles.selected.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

// Choice reports the action the user picked. ok is false when the prompt was dismissed.
func (m *RecoveryModel) Choice() (resilience.Action, bool) {
	if m.chosen == nil {
		return resilience.Action{}, false
	}
	return *m.chosen, true
}

// Effect is shorthand for the chosen action's effect.
func (m *RecoveryModel) Effect() (resilience.Effect, bool) {
	a, ok := m.Choice()
	return a.Effect, ok
}

// Prompt runs a [RecoveryModel] on the terminal and returns the chosen effect.
func Prompt(rec *resilience.Record, rcm resilience.Recommendation, opts ...tea.ProgramOption) (resilience.Effect, bool, error) {
	model := NewRecoveryModel(rec, rcm)
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return resilience.Effect{}, false, err
	}
	eff, ok := final.(*RecoveryModel).Effect()
	return eff, ok, nil
}
