package condacore

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the condacore error domain type.
//
// Errors coming from condacore components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Implementers of condacore components should create an Error at the system
// boundary (e.g. when touching the filesystem or a package cache) and
// intermediate layers should not wrap in another Error except to add additional
// [ErrorKind] information. That is to say, use [fmt.Errorf] with a "%w" verb in
// preference to creating a containing Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrConflict,
		ErrInternal,
		ErrInvalid,
		ErrPrecondition,
		ErrTransient:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(kind error) bool {
	switch kind {
	case ErrVersionDependent:
		return !errors.Is(e, ErrTransient) && !errors.Is(e, ErrPermanent)
	default:
	}
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
//
// If an error is unsure which kind to use, ErrInternal should be used.
type ErrorKind string

// Defined error kinds.
var (
	ErrConflict     = ErrorKind("conflict")     // conflicting action
	ErrInternal     = ErrorKind("internal")     // non-specific internal error
	ErrInvalid      = ErrorKind("invalid")      // invalid request
	ErrPrecondition = ErrorKind("precondition") // some precondition unfulfilled
	ErrTransient    = ErrorKind("transient")    // may succeed on retry
	ErrPermanent    = ErrorKind("permanent")    // will never succeed

	// ErrVersionDependent should only be used for an [Is] comparison.
	// It's true for any error that's not marked as transient or permanent.
	ErrVersionDependent = ErrorKind("version dependent") // neither transient nor permanent, may not error in a future version
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}

// The following are the named error kinds from the error handling design,
// reported via the Op field of an [Error] rather than as distinct Go types,
// so that all of them compose uniformly with [errors.Is]/[errors.As] through
// the Error/ErrorKind pair above.
const (
	OpArgument                  = "ArgumentError"
	OpEnvironmentLocationNotFound = "EnvironmentLocationNotFound"
	OpEnvironmentNotWritable     = "EnvironmentNotWritable"
	OpPathNotFound               = "PathNotFound"
	OpNotWritable                = "NotWritable"
	OpCondaSystemExit            = "CondaSystemExit"
	OpDryRunExit                 = "DryRunExit"
	OpChannelDenied              = "ChannelDenied"
	OpDisallowedPackage          = "DisallowedPackage"
	OpKnownPackageClobber        = "KnownPackageClobber"
	OpUnknownPackageClobber      = "UnknownPackageClobber"
	OpSharedLinkPathClobber      = "SharedLinkPathClobber"
	OpRemoveSelf                 = "RemoveSelf"
	OpLinkError                  = "LinkError"
	OpSafetyError                = "SafetyError"
	OpCondaVerificationError     = "CondaVerificationError"
	OpPaddingError               = "PaddingError"
	OpSolverUnsatisfiable        = "SolverUnsatisfiable"
	OpCondaHTTPError             = "CondaHTTPError"
	OpCondaSSLError              = "CondaSSLError"
)

// UnsatisfiableError reports a solver failure, carrying the minimal unsat
// core of the user's requested specs so it can be rendered as a numbered
// list of conflicting specs.
type UnsatisfiableError struct {
	Specs []string // minimal unsatisfiable subset of the requested specs
}

// Error implements error.
func (e *UnsatisfiableError) Error() string {
	var b strings.Builder
	b.WriteString("unsatisfiable specs:")
	for i, s := range e.Specs {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, s)
	}
	return b.String()
}

// CondaMultiError aggregates multiple errors, used by the transaction
// engine's execute step to report the first failure alongside any errors
// encountered while rolling back.
type CondaMultiError struct {
	Errs []error
}

// Error implements error.
func (e *CondaMultiError) Error() string {
	var b strings.Builder
	b.WriteString("multiple errors occurred:")
	for _, err := range e.Errs {
		fmt.Fprintf(&b, "\n  -> %s", err)
	}
	return b.String()
}

// Unwrap enables [errors.Is]/[errors.As] to examine every aggregated error.
func (e *CondaMultiError) Unwrap() []error {
	return e.Errs
}
