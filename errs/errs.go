// Package errs implements TAO's error code space and the per-actor "last
// error" record described in the design notes: every goroutine-owned actor
// (a client connection, a server loop, a one-shot helper) carries its own
// *Last instead of relying on thread-local storage, which Go does not have.
package errs

import (
	"fmt"
	"sync"
)

// Code is a TAO error code. Positive values are host errno values
// (reused verbatim); negative values are TAO-specific kinds.
type Code int

// TAO-specific kinds, disjoint from errno (which is always >= 0).
const (
	OK                 Code = 0
	AcquisitionRunning Code = -1
	BadArgument        Code = -2
	BadEncoding        Code = -3
	BadROI             Code = -4
	BadSerial          Code = -5
	BadBuffers         Code = -6
	Corrupted          Code = -7
	Exhausted          Code = -8
	ForbiddenChange    Code = -9
	MustReset          Code = -10
	NotAcquiring       Code = -11
	NotReady           Code = -12
	OutOfRange         Code = -13
	Overwritten        Code = -14
	Unsupported        Code = -15
	NotFound           Code = -16
	SystemError        Code = -17
	Timeout            Code = -18
	Interrupted        Code = -19
)

var names = map[Code]string{
	OK:                 "ok",
	AcquisitionRunning: "acquisition-running",
	BadArgument:        "bad-argument",
	BadEncoding:        "bad-encoding",
	BadROI:             "bad-roi",
	BadSerial:          "bad-serial",
	BadBuffers:         "bad-buffers",
	Corrupted:          "corrupted",
	Exhausted:          "exhausted",
	ForbiddenChange:    "forbidden-change",
	MustReset:          "must-reset",
	NotAcquiring:       "not-acquiring",
	NotReady:           "not-ready",
	OutOfRange:         "out-of-range",
	Overwritten:        "overwritten",
	Unsupported:        "unsupported",
	NotFound:           "not-found",
	SystemError:        "system-error",
	Timeout:            "timeout",
	Interrupted:        "interrupted",
}

// String renders known TAO kinds by name; unknown non-negative codes are
// assumed to be host errno values and rendered numerically, since errs does
// not depend on a particular OS's errno-to-text table.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	if c >= 0 {
		return fmt.Sprintf("errno(%d)", int(c))
	}
	return fmt.Sprintf("tao-error(%d)", int(c))
}

// Record is a single last-error entry: the failing function's name, the
// code, and an optional free-text message. It carries no code-to-text
// callback; codes are rendered by Code.String.
type Record struct {
	Func    string
	Code    Code
	Message string
}

func (r Record) Error() string {
	if r.Message != "" {
		return fmt.Sprintf("%s: %s: %s", r.Func, r.Code, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Func, r.Code)
}

// Last is the last-error record owned by a single actor (client connection,
// server loop, ...). It is never shared across goroutines; callers that
// need to inspect a failure from a concurrent operation must carry their
// own *Last, not share one.
type Last struct {
	mu     sync.Mutex
	record Record
	set    bool
}

// NewLast returns a fresh, empty last-error record for a new actor.
func NewLast() *Last {
	return &Last{}
}

// Set records a failure. Per the propagation policy, callers that fail
// must always call Set before returning their documented failure value.
func (l *Last) Set(function string, code Code, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record = Record{Func: function, Code: code, Message: message}
	l.set = true
}

// Setf is Set with a formatted message.
func (l *Last) Setf(function string, code Code, format string, args ...any) {
	l.Set(function, code, fmt.Sprintf(format, args...))
}

// Get returns the current record and whether one has ever been set.
// Get never mutates the record (getters must not clear or set it).
func (l *Last) Get() (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record, l.set
}

// Clear drops the current record. This is the only way to reset Last;
// failures never implicitly unwind or clear themselves.
func (l *Last) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record = Record{}
	l.set = false
}

// Handler formats and delivers a reported error. Until SetHandler is
// called, Report uses a package default that prints the record to
// standard output; callers may install their own, e.g. to route
// through zap.
type Handler func(Record)

var (
	handlerMu sync.Mutex
	handler   Handler = defaultHandler
)

// SetHandler installs the process-wide error-report handler.
func SetHandler(h Handler) {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	if h == nil {
		h = defaultHandler
	}
	handler = h
}

func defaultHandler(r Record) {
	fmt.Println("tao: " + r.Error())
}

// Report formats and delivers the current record through the installed
// handler, if one is set. Report does not clear the record.
func (l *Last) Report() {
	r, ok := l.Get()
	if !ok {
		return
	}
	handlerMu.Lock()
	h := handler
	handlerMu.Unlock()
	h(r)
}

// Panic reports the current record and then panics. It is the TAO
// "panic routine": report and exit, used only by callers that have
// already decided a failure is unrecoverable.
func (l *Last) Panic() {
	r, ok := l.Get()
	if !ok {
		panic("tao: panic called with no error set")
	}
	l.Report()
	panic(r)
}
