package tools

import "fmt"

// ToolInputError reports arguments that do not satisfy a tool's
// parameter list.
type ToolInputError struct {
	Tool    string
	Param   string
	Message string
}

func (e *ToolInputError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("tool %s: parameter %q %s", e.Tool, e.Param, e.Message)
}

// Unwrap returns nil; input errors have no underlying cause.
func (e *ToolInputError) Unwrap() error {
	return nil
}
