package cmd

import "fmt"

// ResultKind classifies the outcome of one invocation.
type ResultKind uint8

const (
	ResultSuccess ResultKind = iota
	ResultParseFailure
	ResultPreconditionFailure
	ResultException
	ResultUnknownCommand
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultParseFailure:
		return "parse failure"
	case ResultPreconditionFailure:
		return "precondition failure"
	case ResultException:
		return "exception"
	case ResultUnknownCommand:
		return "unknown command"
	}
	return fmt.Sprintf("ResultKind(%d)", uint8(k))
}

// Result is the normalized outcome of one invocation.
type Result struct {
	Kind    ResultKind
	Reason  string
	Err     error
	Command *Command
	Key     string
	// Pending is set on the immediate result of an async command. The final
	// result is reported separately once the handler returns.
	Pending bool
}

// IsSuccess reports whether the invocation succeeded.
func (r Result) IsSuccess() bool { return r.Kind == ResultSuccess }

// Describe returns a human readable explanation of a failed result.
func (r Result) Describe() string {
	if r.Kind == ResultSuccess {
		return ""
	}
	if r.Err != nil && r.Reason == "" {
		return r.Err.Error()
	}
	if r.Err != nil {
		return r.Reason + ": " + r.Err.Error()
	}
	return r.Reason
}

// Success returns a successful result.
func Success() Result { return Result{Kind: ResultSuccess} }

// Failure returns a result of the given kind carrying err.
func Failure(kind ResultKind, reason string, err error) Result {
	return Result{Kind: kind, Reason: reason, Err: err}
}
