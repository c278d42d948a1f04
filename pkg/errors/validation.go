package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for path traversal or injection attacks.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, etc.)
//   - No null bytes
//   - Maximum length of 256 characters
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// pythonPackageNameRegex matches valid Python package names (PEP 508).
var pythonPackageNameRegex = regexp.MustCompile(`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9])$`)

// ValidatePythonPackageName validates a Python package name per PEP 508.
func ValidatePythonPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}

	if !pythonPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid Python package name: %q", name)
	}

	return nil
}

// Characters that must never reach a resolver subprocess.
const shellMetachars = ";&|$`(){}[]*?'\"\\\n\r\t "

// Version operators other than an exact pin.
const rangeOperators = "<>~!"

var specRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+(?:==[A-Za-z0-9_.-]+)?$`)

// ValidateSpec validates a root package spec: either a bare name or an
// exact pin of the form name==version. Ranges, extras and anything that
// could be interpreted by a shell are rejected.
func ValidateSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return New(ErrCodeInvalidSpec, "package spec cannot be empty")
	}
	if len(spec) > 256 {
		return New(ErrCodeInvalidSpec, "package spec too long (max 256 characters)")
	}
	if i := strings.IndexAny(spec, shellMetachars); i >= 0 {
		return New(ErrCodeInvalidSpec, "package spec %q contains forbidden character %q", spec, spec[i])
	}
	if i := strings.IndexAny(spec, rangeOperators); i >= 0 {
		return New(ErrCodeInvalidSpec, "package spec %q uses unsupported version operator %q (only == is allowed)", spec, spec[i])
	}
	if !specRegex.MatchString(spec) {
		return New(ErrCodeInvalidSpec, "invalid package spec: %q (expected name or name==version)", spec)
	}
	name, _, _ := strings.Cut(spec, "==")
	if err := ValidatePythonPackageName(name); err != nil {
		return Wrap(ErrCodeInvalidSpec, err, "invalid package spec: %q", spec)
	}
	return nil
}

// ValidateURL checks that rawURL is an absolute http or https URL with a
// host.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return New(ErrCodeInvalidInput, "URL %q must use http or https scheme", rawURL)
	}
	if u.Host == "" {
		return New(ErrCodeInvalidInput, "URL %q has no host", rawURL)
	}
	return nil
}
