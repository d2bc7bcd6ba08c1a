package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

func runUI(ctx context.Context, e *env) error {
	a, cleanup, err := newApp(e)
	if err != nil {
		return err
	}
	defer cleanup()

	stopObservability, err := startObservability(ctx, e.cfg.Observability, a)
	if err != nil {
		return err
	}
	defer stopObservability()

	m := initialModel(a, e.opts.file, e.opts.imports)
	if e.opts.file != "" {
		if msg := a.ParseSource(ctx, e.opts.file, false); msg != "" {
			e.logger.Warn("initial parse failed", "path", e.opts.file, "error", msg)
			m.status = errorStyle.Render(msg)
		}
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithInput(e.in), tea.WithOutput(e.out))
	_, err = p.Run()
	return err
}
