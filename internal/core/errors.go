package core

import "fmt"

// Session error taxonomy. Startup-step errors are fatal to the session;
// InjectionError and PipelineError are recovered locally.

// TransportError covers socket open/close/error before or during use.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// AuthError covers protocol handshake failures.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// PushError covers agent payload fetch and device file-write failures.
type PushError struct {
	Op  string
	Err error
}

func (e *PushError) Error() string { return fmt.Sprintf("agent push %s: %v", e.Op, e.Err) }
func (e *PushError) Unwrap() error { return e.Err }

// AgentStartError covers agent launch failures, including "no video stream".
type AgentStartError struct {
	Reason string
	Err    error
}

func (e *AgentStartError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}
func (e *AgentStartError) Unwrap() error { return e.Err }

// InjectionError is a single input event that failed to deliver. Non-fatal.
type InjectionError struct {
	Err error
}

func (e *InjectionError) Error() string { return fmt.Sprintf("input injection: %v", e.Err) }
func (e *InjectionError) Unwrap() error { return e.Err }

// PipelineError is a video delivery failure. Non-fatal to the session.
type PipelineError struct {
	Sink string
	Err  error
}

func (e *PipelineError) Error() string { return fmt.Sprintf("pipeline %s: %v", e.Sink, e.Err) }
func (e *PipelineError) Unwrap() error { return e.Err }
