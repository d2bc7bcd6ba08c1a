package history

import "time"

// Outcome values recorded for a parse. They match the labels of the
// parse counter so the journal and the metrics agree.
const (
	OutcomeOK           = "ok"
	OutcomeRuntimeError = "runtime_error"
	OutcomeFileError    = "file_error"
	OutcomeSyntaxError  = "syntax_error"
	OutcomeImportError  = "import_error"
	OutcomeExecError    = "exec_error"
)

// Entry is one parse_source call as seen by the journal.
type Entry struct {
	ID          int64         `json:"id"`
	Session     string        `json:"session"`
	Path        string        `json:"path"`
	Timestamp   time.Time     `json:"timestamp"`
	Outcome     string        `json:"outcome"`
	Message     string        `json:"message,omitempty"`
	ImportCount int           `json:"import_count"`
	Duration    time.Duration `json:"duration"`
}

// OK reports whether the parse succeeded.
func (e Entry) OK() bool {
	return e.Outcome == OutcomeOK
}
