package hook

import (
	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/sink"
)

// Decision is what an interception does with the call it caught.
type Decision int

const (
	// PassThrough calls the original with the caller's arguments.
	PassThrough Decision = iota
	// Suppress skips the original and returns a fabricated result.
	Suppress
	// Modify calls the original with altered arguments.
	Modify
)

func (d Decision) String() string {
	switch d {
	case PassThrough:
		return "pass"
	case Suppress:
		return "suppress"
	case Modify:
		return "modify"
	}
	return "unknown"
}

// Outcome classifies a return value as success or failure and renders it
// for the record.
type Outcome[R any] func(ret R) (success bool, value uint64)

// Call describes one intercepted invocation.
type Call[R any] struct {
	API      string
	Category string

	// Decide picks the decision. Nil means PassThrough.
	Decide func(g *Guard, p *config.Policy) Decision
	// Original invokes the real implementation with the caller's arguments.
	Original func() R
	// Modified invokes the real implementation with altered arguments.
	// Required for Modify.
	Modified func() R
	// Suppressed fabricates the result returned instead of calling the
	// original. Required for Suppress.
	Suppressed func() (R, uint32)

	// Before runs after the decision and before the original.
	Before func(g *Guard, p *config.Policy)
	// After runs once the original returned and before the record.
	After func(g *Guard, p *config.Policy, ret R)
	// Record builds the signature and values. Nil emits nothing.
	Record func(ret R) (signature string, args []sink.Arg)
	// Outcome interprets the return value. Nil counts every call as
	// successful with value zero.
	Outcome Outcome[R]
}

// Invoke runs c under a Guard: the decision, the original (or its
// replacement) and at most one record.
func Invoke[R any](rt *Runtime, c Call[R]) R {
	g := rt.Enter(c.API)
	defer g.Leave()

	pol := rt.Policy()
	decision := PassThrough
	if c.Decide != nil {
		decision = c.Decide(g, pol)
	}
	if c.Before != nil {
		c.Before(g, pol)
	}

	var ret R
	switch decision {
	case Suppress:
		var code uint32
		ret, code = c.Suppressed()
		g.lastErr = code
	case Modify:
		g.Call(func() { ret = c.Modified() })
	default:
		g.Call(func() { ret = c.Original() })
	}

	if c.After != nil {
		c.After(g, pol, ret)
	}
	if c.Record != nil && !g.quiet {
		success, value := true, uint64(0)
		if c.Outcome != nil {
			success, value = c.Outcome(ret)
		}
		sig, args := c.Record(ret)
		rt.emit(g, pol, c.API, c.Category, sig, args, success, value)
	}
	return ret
}

// NTStatus treats non-negative status codes as success.
func NTStatus(ret uint32) (bool, uint64) { return int32(ret) >= 0, uint64(ret) }

// HResult treats non-negative HRESULTs as success.
func HResult(ret uint32) (bool, uint64) { return int32(ret) >= 0, uint64(ret) }

// Bool treats a non-zero BOOL as success.
func Bool(ret bool) (bool, uint64) {
	if ret {
		return true, 1
	}
	return false, 0
}

// Zero treats a zero return as success.
func Zero(ret uintptr) (bool, uint64) { return ret == 0, uint64(ret) }
