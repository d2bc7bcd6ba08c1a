package cli

import (
	"context"
	"fmt"
	"strings"

	"pycomplete/internal/core/document"
	"pycomplete/internal/core/errors"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	signatureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1)
)

// explorer is the part of the application the UI queries.
type explorer interface {
	GetAllCompletions(ctx context.Context, expr, path string, imports []string) ([]string, error)
	Complete(ctx context.Context, expr, path string, imports []string) (document.CompleteResult, error)
	GetSignature(ctx context.Context, expr, path string, imports []string) string
	GetDocstring(ctx context.Context, expr, path string, imports []string) string
	GetLocation(ctx context.Context, expr, path string, imports []string) (document.Location, bool)
}

type item struct {
	name, expr string
}

func (i item) Title() string       { return i.name }
func (i item) Description() string { return i.expr }
func (i item) FilterValue() string { return i.name }

type details struct {
	expr      string
	signature string
	docstring string
	location  document.Location
	hasLoc    bool
}

type model struct {
	svc     explorer
	path    string
	imports []string

	input      textinput.Model
	candidates list.Model
	details    *details
	status     string
	width      int
}

type completionsMsg struct {
	expr  string
	names []string
	err   error
}

type completeMsg struct {
	expr   string
	result document.CompleteResult
	err    error
}

type detailsMsg details

type sourceJumpResultMsg struct {
	target string
	err    error
}

func initialModel(svc explorer, path string, imports []string) model {
	input := textinput.New()
	input.Placeholder = "os.path.jo"
	input.Prompt = "> "
	input.Focus()

	candidates := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	candidates.Title = "Completions"
	candidates.SetShowStatusBar(false)
	candidates.SetFilteringEnabled(false)
	candidates.SetShowHelp(false)

	return model{
		svc:        svc,
		path:       path,
		imports:    imports,
		input:      input,
		candidates: candidates,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.completionsCmd(""))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.width = msg.Width - h
		m.candidates.SetSize(m.width, (msg.Height-v)/2)
		return m, nil
	case completionsMsg:
		if msg.expr != m.input.Value() {
			return m, nil
		}
		if msg.err != nil {
			m.status = errorStyle.Render(errors.Describe(msg.err))
		}
		items := make([]list.Item, 0, len(msg.names))
		base := qualifier(msg.expr)
		for _, name := range msg.names {
			items = append(items, item{name: name, expr: base + name})
		}
		cmd := m.candidates.SetItems(items)
		m.candidates.Select(0)
		return m, cmd
	case completeMsg:
		if msg.expr != m.input.Value() {
			return m, nil
		}
		if msg.err != nil {
			m.status = errorStyle.Render(errors.Describe(msg.err))
			return m, nil
		}
		switch msg.result.Kind {
		case document.CompleteSuffix:
			m.input.SetValue(msg.expr + msg.result.Suffix)
			m.input.CursorEnd()
			m.status = ""
			return m, m.completionsCmd(m.input.Value())
		case document.CompleteNotFound:
			m.status = "no completion"
		case document.CompleteAmbiguous:
			m.status = fmt.Sprintf("%d candidates", len(msg.result.Candidates))
		}
		return m, nil
	case detailsMsg:
		d := details(msg)
		m.details = &d
		m.status = ""
		return m, nil
	case sourceJumpResultMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("open %s: %v", msg.target, msg.err))
		} else {
			m.status = "returned from " + msg.target
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle("Python Completion Explorer"))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.contextLine()))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.candidates.View())

	if m.details != nil {
		var d strings.Builder
		if m.details.signature != "" {
			d.WriteString(signatureStyle.Render(m.details.signature))
		} else {
			d.WriteString(signatureStyle.Render(m.details.expr))
		}
		if m.details.docstring != "" {
			d.WriteString("\n\n")
			d.WriteString(m.details.docstring)
		}
		if m.details.hasLoc {
			d.WriteString("\n\n")
			d.WriteString(statusStyle.Render(fmt.Sprintf("%s:%d (ctrl+o to open)", m.details.location.File, m.details.location.Line)))
		}
		b.WriteString("\n")
		b.WriteString(detailStyle.Width(max(m.width-4, 20)).Render(d.String()))
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(statusStyle.Render("tab complete | up/down select | enter describe | ctrl+o open | esc quit"))
	return docStyle.Render(b.String())
}

func (m model) contextLine() string {
	file := m.path
	if file == "" {
		file = "(no file)"
	}
	switch {
	case m.imports == nil:
		return file
	case len(m.imports) == 1:
		return file + " | 1 import"
	}
	return fmt.Sprintf("%s | %d imports", file, len(m.imports))
}

// qualifier returns the part of expr up to and including its last dot.
func qualifier(expr string) string {
	if i := strings.LastIndexByte(expr, '.'); i >= 0 {
		return expr[:i+1]
	}
	return ""
}
