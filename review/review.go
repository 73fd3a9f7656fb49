// Package review is the editable surface Review-mode transcripts open in:
// a one-field terminal editor the user confirms or discards.
package review

import (
	"context"
	"errors"
	"strings"
	"unicode"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var ErrDiscarded = errors.New("review discarded")

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)
)

// Model edits a single transcript. Enter accepts, Esc discards.
type Model struct {
	Title string

	text     []rune
	cursor   int
	width    int
	done     bool
	accepted bool
}

func New(title, text string) Model {
	r := []rune(text)
	return Model{Title: title, text: r, cursor: len(r)}
}

// Value returns the current text.
func (m Model) Value() string { return string(m.text) }

// Accepted reports whether the user confirmed the edit.
func (m Model) Accepted() bool { return m.accepted }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done, m.accepted = true, true
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.done = true
			return m, tea.Quit
		case tea.KeyLeft:
			if m.cursor > 0 {
				m.cursor--
			}
		case tea.KeyRight:
			if m.cursor < len(m.text) {
				m.cursor++
			}
		case tea.KeyHome, tea.KeyCtrlA:
			m.cursor = 0
		case tea.KeyEnd, tea.KeyCtrlE:
			m.cursor = len(m.text)
		case tea.KeyBackspace:
			if m.cursor > 0 {
				m.text = append(m.text[:m.cursor-1], m.text[m.cursor:]...)
				m.cursor--
			}
		case tea.KeyDelete:
			if m.cursor < len(m.text) {
				m.text = append(m.text[:m.cursor], m.text[m.cursor+1:]...)
			}
		case tea.KeyCtrlW:
			m.deleteWord()
		case tea.KeyCtrlU:
			m.text = m.text[m.cursor:]
			m.cursor = 0
		case tea.KeySpace:
			m.insert([]rune{' '})
		case tea.KeyRunes:
			m.insert(msg.Runes)
		}
	}
	return m, nil
}

func (m *Model) insert(r []rune) {
	out := make([]rune, 0, len(m.text)+len(r))
	out = append(out, m.text[:m.cursor]...)
	out = append(out, r...)
	out = append(out, m.text[m.cursor:]...)
	m.text = out
	m.cursor += len(r)
}

// deleteWord removes the word before the cursor and the spaces after it.
func (m *Model) deleteWord() {
	i := m.cursor
	for i > 0 && unicode.IsSpace(m.text[i-1]) {
		i--
	}
	for i > 0 && !unicode.IsSpace(m.text[i-1]) {
		i--
	}
	m.text = append(m.text[:i], m.text[m.cursor:]...)
	m.cursor = i
}

func (m Model) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(textStyle.Render(string(m.text[:m.cursor])))
	if m.cursor < len(m.text) {
		b.WriteString(cursorStyle.Render(string(m.text[m.cursor])))
		b.WriteString(textStyle.Render(string(m.text[m.cursor+1:])))
	} else {
		b.WriteString(cursorStyle.Render(" "))
	}

	box := boxStyle
	if m.width > 4 {
		box = box.Width(m.width - 2)
	}
	help := helpStyle.Render("enter accept • esc discard • ctrl+w delete word")
	return titleStyle.Render(m.Title) + "\n" + box.Render(b.String()) + "\n" + help + "\n"
}

// Edit runs the editor until the user accepts or discards, or ctx ends.
// It returns ErrDiscarded when the text was not accepted.
func Edit(ctx context.Context, title, text string, opts ...tea.ProgramOption) (string, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(New(title, text), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return "", ErrDiscarded
		}
		return "", err
	}
	m := final.(Model)
	if !m.Accepted() {
		return "", ErrDiscarded
	}
	return strings.TrimSpace(m.Value()), nil
}
