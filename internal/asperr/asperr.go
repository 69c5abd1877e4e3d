// Package asperr defines the machine-readable error taxonomy shared across
// asp's components. Every error carries a stable Code so the CLI boundary
// can map it to exit behavior without string matching.
package asperr

import "fmt"

// Code identifies an error kind for callers that need to branch on it
// (the CLI boundary, tests) without parsing messages.
type Code string

const (
	CodeConfigParse       Code = "ConfigParseError"
	CodeConfigValidation  Code = "ConfigValidationError"
	CodeRefParse          Code = "RefParseError"
	CodeSelectorResolve   Code = "SelectorResolutionError"
	CodeCyclicDependency  Code = "CyclicDependencyError"
	CodeMissingDependency Code = "MissingDependencyError"
	CodeIntegrity         Code = "IntegrityError"
	CodeSnapshot          Code = "SnapshotError"
	CodeMaterialization   Code = "MaterializationError"
	CodeLock              Code = "LockError"
	CodeLockTimeout       Code = "LockTimeoutError"
	CodeGit               Code = "GitError"
	CodeHarnessNotFound   Code = "HarnessNotFoundError"
	CodeHarnessInvocation Code = "HarnessInvocationError"
	CodeBundle            Code = "BundleError"
)

// Error is the common shape every asp error implements. Callers that need
// to branch on the kind read Code(); everything else just calls Error()
// and wraps with %w.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the machine-readable error kind.
func (e *Error) Code() Code { return e.code }

func newErr(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...), cause: cause}
}

// ConfigParseError reports a malformed on-disk document.
func ConfigParseError(path string, cause error) error {
	return newErr(CodeConfigParse, cause, "failed to parse %s", path)
}

// ConfigValidationError reports a document that parsed but failed schema
// or invariant validation, naming the offending field when known.
func ConfigValidationError(path, field, reason string) error {
	if field != "" {
		return newErr(CodeConfigValidation, nil, "%s: field %q invalid: %s", path, field, reason)
	}
	return newErr(CodeConfigValidation, nil, "%s: %s", path, reason)
}

// RefParseError reports a reference string that failed grammar parsing.
func RefParseError(ref, reason string) error {
	return newErr(CodeRefParse, nil, "invalid space reference %q: %s", ref, reason)
}

// SelectorResolutionError reports a (spaceId, selector) pair that could not
// be resolved to a commit.
func SelectorResolutionError(spaceID, selector, reason string) error {
	return newErr(CodeSelectorResolve, nil, "could not resolve %s@%s: %s", spaceID, selector, reason)
}

// CyclicDependencyError reports the exact cycle path, joined by " -> ".
func CyclicDependencyError(cyclePath []string) error {
	joined := ""
	for i, k := range cyclePath {
		if i > 0 {
			joined += " -> "
		}
		joined += k
	}
	return newErr(CodeCyclicDependency, nil, "cyclic space dependency: %s", joined)
}

// MissingDependencyError reports a dependent whose dependency ref could not
// be found.
func MissingDependencyError(dependent, missingRef string) error {
	return newErr(CodeMissingDependency, nil, "%s depends on %s, which could not be found", dependent, missingRef)
}

// IntegrityError reports an expected/actual hash mismatch at a path.
func IntegrityError(path, expected, actual string) error {
	return newErr(CodeIntegrity, nil, "integrity mismatch at %s: expected %s, got %s", path, expected, actual)
}

// SnapshotError reports a failure while creating, verifying, or deleting a
// snapshot for (spaceID, commit).
func SnapshotError(spaceID, commit string, cause error) error {
	return newErr(CodeSnapshot, cause, "snapshot operation failed for %s@%s", spaceID, commit)
}

// MaterializationError reports a failure while building a per-space
// harness artifact.
func MaterializationError(spaceID string, cause error) error {
	return newErr(CodeMaterialization, cause, "materialization failed for %s", spaceID)
}

// LockError reports a generic lock-file read/write/merge failure.
func LockError(path string, cause error) error {
	return newErr(CodeLock, cause, "lock file operation failed at %s", path)
}

// LockTimeoutError reports a failure to acquire the advisory lock file
// before the timeout elapsed.
func LockTimeoutError(path string, timeoutSeconds float64) error {
	return newErr(CodeLockTimeout, nil, "timed out after %.1fs waiting for lock %s", timeoutSeconds, path)
}

// GitError reports a non-zero exit from a git subcommand, with its stderr
// propagated verbatim.
func GitError(subcommand string, exitCode int, stderr string) error {
	return newErr(CodeGit, nil, "git %s exited %d: %s", subcommand, exitCode, stderr)
}

// HarnessNotFoundError reports a harness binary that could not be located.
func HarnessNotFoundError(harnessID string) error {
	return newErr(CodeHarnessNotFound, nil, "harness %q binary not found on PATH", harnessID)
}

// HarnessInvocationError reports a harness subprocess that exited non-zero,
// with its captured stderr.
func HarnessInvocationError(harnessID string, exitCode int, stderr string) error {
	return newErr(CodeHarnessInvocation, nil, "harness %q exited %d: %s", harnessID, exitCode, stderr)
}

// BundleError reports a failure while assembling or reading a target
// bundle, naming the path and underlying cause.
func BundleError(path string, cause error) error {
	return newErr(CodeBundle, cause, "bundle error at %s", path)
}
