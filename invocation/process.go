package invocation

import "sync/atomic"

// Process is the state shared by every invocation served by one execution
// environment. The zero value is not usable; call NewProcess.
type Process struct {
	coldStart   atomic.Bool
	invocations atomic.Int64
}

// NewProcess returns a lifecycle whose next invocation is a cold start.
func NewProcess() *Process {
	p := &Process{}
	p.coldStart.Store(true)
	return p
}

var defaultProcess = NewProcess()

// Default returns the lifecycle of the running process.
func Default() *Process {
	return defaultProcess
}

// Begin registers a new invocation and reports whether it is the cold start.
// Exactly one caller ever receives true, even when invocations begin
// concurrently, and the flag stays cleared whatever the outcome of that call.
func (p *Process) Begin() bool {
	p.invocations.Add(1)
	return p.coldStart.CompareAndSwap(true, false)
}

// IsColdStart reports whether no invocation has begun yet.
func (p *Process) IsColdStart() bool {
	return p.coldStart.Load()
}

// Invocations returns how many invocations this process has begun.
func (p *Process) Invocations() int64 {
	return p.invocations.Load()
}
