package report

import "errors"

var (
	ErrReportNotFound         = errors.New("report not found")
	ErrMissingExportDirectory = errors.New("report has no export directory")
	ErrEmptyOutput            = errors.New("agent produced no usable output")
)

const genericAgentError = "agent reported an error without a message"

// AgentError is returned when the agent stream flagged an error and no text
// was produced. Its text is the agent's own message, which is what the
// failed row stores.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string {
	return e.Message
}
