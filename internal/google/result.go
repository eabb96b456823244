package google

// Result is the uniform outcome of a service client operation. Message is
// always human readable and is what the reasoning engine sees. Err keeps the
// underlying failure for callers that need to react to it (for example a
// revoked credential); it is never shown verbatim.
type Result struct {
	Success bool
	Message string
	Err     error
}

// Succeeded builds a successful Result.
func Succeeded(message string) Result {
	return Result{Success: true, Message: message}
}

// Failed builds a failed Result.
func Failed(message string, err error) Result {
	return Result{Success: false, Message: message, Err: err}
}
