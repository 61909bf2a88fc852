package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the host/guest lifecycle the error occurred
type Phase string

const (
	PhaseLoad        Phase = "load"        // reading module bytes
	PhaseParse       Phase = "parse"       // WAT to binary
	PhaseCompile     Phase = "compile"     // validation and compilation
	PhaseLink        Phase = "link"        // import registration and resolution
	PhaseInstantiate Phase = "instantiate" // instance creation and export binding
	PhaseRuntime     Phase = "runtime"     // guest calls
	PhaseHost        Phase = "host"        // inside a host import body
)

// Kind categorizes the error
type Kind string

const (
	KindAlreadyErrored Kind = "already_errored"
	KindIO             Kind = "io"
	KindCompile        Kind = "compile"
	KindInstantiation  Kind = "instantiation"
	KindMemory         Kind = "memory"
	KindExport         Kind = "export"
	KindRuntime        Kind = "runtime"
	KindMemoryAccess   Kind = "memory_access"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindLockAbandoned  Kind = "lock_abandoned"
	KindNoMemory       Kind = "no_memory"
	KindNoAllocation   Kind = "no_allocation"
	KindUnspecified    Kind = "unspecified"
	KindMissingImport  Kind = "missing_import"
	KindInvalidInput   Kind = "invalid_input"
	KindStoreBusy      Kind = "store_busy"
	KindParse          Kind = "parse"
)

// Kind-only sentinels for errors.Is checks.
var (
	ErrAlreadyErrored = &Error{Kind: KindAlreadyErrored}
	ErrCompile        = &Error{Kind: KindCompile}
	ErrInstantiation  = &Error{Kind: KindInstantiation}
	ErrMemory         = &Error{Kind: KindMemory}
	ErrExport         = &Error{Kind: KindExport}
	ErrRuntime        = &Error{Kind: KindRuntime}
	ErrMemoryAccess   = &Error{Kind: KindMemoryAccess}
	ErrInvalidUTF8    = &Error{Kind: KindInvalidUTF8}
	ErrLockAbandoned  = &Error{Kind: KindLockAbandoned}
	ErrNoMemory       = &Error{Kind: KindNoMemory}
	ErrNoAllocation   = &Error{Kind: KindNoAllocation}
	ErrUnspecified    = &Error{Kind: KindUnspecified}
	ErrMissingImport  = &Error{Kind: KindMissingImport}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrStoreBusy      = &Error{Kind: KindStoreBusy}
)

// Error is the structured error type used throughout the harness
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Detail  string
	Context string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Context != "" {
		b.WriteString(" (context: ")
		b.WriteString(e.Context)
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same kind, and the same phase when the
// target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Context sets the human-readable lookup context
func (b *Builder) Context(ctx string) *Builder {
	b.err.Context = ctx
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// AlreadyErrored reports that an instance already holds a captured import
// error, so another guest call could not report its own.
func AlreadyErrored(captured error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindAlreadyErrored,
		Detail: "instance already holds a captured import error",
		Cause:  captured,
	}
}

// IO creates an I/O error
func IO(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// Compile creates a module compilation error
func Compile(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompile,
		Detail: "compile module",
		Cause:  cause,
	}
}

// ParseFailed creates a text format parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindParse,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// AllocationFailed creates a guest memory allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemory,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
		Value:  size,
	}
}

// Export creates an export lookup error. original is the lookup failure and
// context names the operation that needed the export.
func Export(phase Phase, original error, context string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindExport,
		Context: context,
		Cause:   original,
	}
}

// Runtime wraps a guest trap
func Runtime(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindRuntime,
		Detail: fmt.Sprintf("call %q", name),
		Cause:  cause,
	}
}

// OutOfBounds creates a memory access error for a ptr+len window that does
// not fit in memory of the given size
func OutOfBounds(phase Phase, ptr, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemoryAccess,
		Detail: fmt.Sprintf("range [%d, %d) out of bounds (memory size %d)", ptr, uint64(ptr)+uint64(length), size),
		Value:  ptr,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// LockAbandoned reports an environment lock whose holder panicked
func LockAbandoned(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLockAbandoned,
		Detail: fmt.Sprintf("%s lock abandoned by a panicking holder", what),
	}
}

// NoMemory reports that no linear memory is bound yet
func NoMemory(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNoMemory,
		Detail: "memory not bound",
	}
}

// NoAllocation reports that no guest allocator is bound
func NoAllocation(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNoAllocation,
		Detail: "allocator not bound",
	}
}

// Unspecified creates a catch-all error for environment invariant violations
func Unspecified(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnspecified,
		Detail: detail,
	}
}

// NotFound creates a lookup failure, used as the cause of export errors
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// StoreBusy reports a second call into a store that is already running
func StoreBusy(name string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindStoreBusy,
		Detail: fmt.Sprintf("store already in use, cannot call %q", name),
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Namespace string // e.g., "debug"
	Function  string // e.g., "print"
}

// MissingImportsError is returned when a guest imports functions the
// registry does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "namespace#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d host function(s):\n", len(e.Imports))

	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Function)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target is a MissingImportsError or the missing import kind
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Kind == KindMissingImport
	}
	return false
}
