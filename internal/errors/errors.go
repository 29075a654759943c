// Package errors provides the error taxonomy shared by case ingestion, decoding,
// authentication and assertion.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess     = 0 // every case passed
	ExitCaseFailure = 1 // at least one case failed, or a runtime error
	ExitSetupError  = 2 // configuration or collection error, nothing was executed
)

// Kind classifies a CaseError.
type Kind int

const (
	KindRuntime Kind = iota
	KindConfig
	KindFileNotFound
	KindInvalidFile
	KindUnsupportedFormat
	KindDecode
	KindAuth
	KindAssertion
	KindTransport
)

var kindNames = map[Kind]string{
	KindRuntime:           "RuntimeError",
	KindConfig:            "ConfigError",
	KindFileNotFound:      "FileNotFound",
	KindInvalidFile:       "InvalidFile",
	KindUnsupportedFormat: "UnsupportedFormat",
	KindDecode:            "DecodeError",
	KindAuth:              "AuthError",
	KindAssertion:         "AssertionFailed",
	KindTransport:         "TransportError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// CaseError is the base error type of the suite.
type CaseError struct {
	Kind    Kind
	Message string
	Path    string // file path if applicable
	Cause   error  // underlying error
}

func (e *CaseError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *CaseError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the CLI exit code for this error.
func (e *CaseError) ExitCode() int {
	switch e.Kind {
	case KindConfig, KindFileNotFound, KindInvalidFile, KindUnsupportedFormat:
		return ExitSetupError
	default:
		return ExitCaseFailure
	}
}

func newf(kind Kind, path string, cause error, format string, args ...interface{}) *CaseError {
	return &CaseError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
		Cause:   cause,
	}
}

// FileNotFound reports a case file path that does not exist.
func FileNotFound(path string) *CaseError {
	return newf(KindFileNotFound, path, nil, "文件不存在")
}

// InvalidFile reports a path that exists but is not a readable spreadsheet.
func InvalidFile(path string, cause error, format string, args ...interface{}) *CaseError {
	return newf(KindInvalidFile, path, cause, format, args...)
}

// UnsupportedFormat reports a case file extension the reader cannot handle.
func UnsupportedFormat(path, ext string) *CaseError {
	return newf(KindUnsupportedFormat, path, nil, "不支持的文件格式 %q", ext)
}

// Decode reports a malformed parameter cell or expectation.
func Decode(cause error, format string, args ...interface{}) *CaseError {
	return newf(KindDecode, "", cause, format, args...)
}

// Auth reports a login that did not yield a token.
func Auth(cause error, format string, args ...interface{}) *CaseError {
	return newf(KindAuth, "", cause, format, args...)
}

// Transport wraps a network level failure.
func Transport(cause error, format string, args ...interface{}) *CaseError {
	return newf(KindTransport, "", cause, format, args...)
}

// Config reports an invalid configuration.
func Config(cause error, format string, args ...interface{}) *CaseError {
	return newf(KindConfig, "", cause, format, args...)
}

// KindOf returns the kind of the first CaseError in err's chain.
// Errors outside the taxonomy report KindRuntime; a nil error reports false.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	var ce *CaseError
	if stderrors.As(err, &ce) {
		return ce.Kind, true
	}
	// AssertionError and other kind carriers
	var kc interface{ ErrorKind() Kind }
	if stderrors.As(err, &kc) {
		return kc.ErrorKind(), true
	}
	return KindRuntime, true
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if ce, ok := e.(*CaseError); ok && ce.Kind == kind {
			return true
		}
		if kc, ok := e.(interface{ ErrorKind() Kind }); ok && kc.ErrorKind() == kind {
			return true
		}
	}
	return false
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *CaseError
	if stderrors.As(err, &ce) {
		return ce.ExitCode()
	}
	return ExitCaseFailure
}
