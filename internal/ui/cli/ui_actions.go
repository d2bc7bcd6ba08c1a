package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab":
		return m, m.completeCmd(m.input.Value())
	case "up", "ctrl+p":
		m.candidates.CursorUp()
		return m, nil
	case "down", "ctrl+n":
		m.candidates.CursorDown()
		return m, nil
	case "enter":
		expr := m.input.Value()
		if it, ok := m.candidates.SelectedItem().(item); ok {
			expr = it.expr
		}
		if strings.TrimSpace(expr) == "" {
			return m, nil
		}
		m.status = statusStyle.Render("looking up " + expr)
		return m, m.detailsCmd(expr)
	case "ctrl+o":
		if m.details == nil || !m.details.hasLoc {
			m.status = statusStyle.Render("No source location available.")
			return m, nil
		}
		return m, jumpToSourceCmd(sourceTarget{file: m.details.location.File, line: m.details.location.Line})
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.details = nil
		m.status = ""
		return m, tea.Batch(cmd, m.completionsCmd(after))
	}
	return m, cmd
}

func (m model) completionsCmd(expr string) tea.Cmd {
	if m.svc == nil {
		return nil
	}
	svc, path, imports := m.svc, m.path, m.imports
	return func() tea.Msg {
		names, err := svc.GetAllCompletions(context.Background(), expr, path, imports)
		return completionsMsg{expr: expr, names: names, err: err}
	}
}

func (m model) completeCmd(expr string) tea.Cmd {
	if m.svc == nil {
		return nil
	}
	svc, path, imports := m.svc, m.path, m.imports
	return func() tea.Msg {
		res, err := svc.Complete(context.Background(), expr, path, imports)
		return completeMsg{expr: expr, result: res, err: err}
	}
}

func (m model) detailsCmd(expr string) tea.Cmd {
	if m.svc == nil {
		return nil
	}
	svc, path, imports := m.svc, m.path, m.imports
	return func() tea.Msg {
		ctx := context.Background()
		loc, ok := svc.GetLocation(ctx, expr, path, imports)
		return detailsMsg{
			expr:      expr,
			signature: svc.GetSignature(ctx, expr, path, imports),
			docstring: svc.GetDocstring(ctx, expr, path, imports),
			location:  loc,
			hasLoc:    ok,
		}
	}
}

type sourceTarget struct {
	file string
	line int
}

func jumpToSourceCmd(target sourceTarget) tea.Cmd {
	cmd, label := editorCommand(target)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return sourceJumpResultMsg{target: label, err: err}
	})
}

func editorCommand(target sourceTarget) (*exec.Cmd, string) {
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	args := []string{target.file}
	if target.line > 0 && (strings.Contains(editor, "vim") || strings.Contains(editor, "nvim") || strings.HasSuffix(editor, "vi")) {
		args = []string{fmt.Sprintf("+%d", target.line), target.file}
	}
	return exec.Command(editor, args...), fmt.Sprintf("%s:%d", target.file, target.line)
}
