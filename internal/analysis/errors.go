package analysis

import "strings"

// ErrorCategoryGeneral is returned when no known signature matches.
const ErrorCategoryGeneral = "general-error"

// errorSignature pairs an output substring with its category. Order matters:
// the first match wins.
type errorSignature struct {
	substring string
	category  string
}

var errorSignatures = []errorSignature{
	{"permission denied", "permission"},
	{"operation not permitted", "permission"},
	{"no such file or directory", "file-not-found"},
	{"cannot find the file", "file-not-found"},
	{"command not found", "command-not-found"},
	{"not recognized as an internal or external command", "command-not-found"},
	{"connection refused", "connection"},
	{"connection reset", "connection"},
	{"could not resolve host", "connection"},
	{"network is unreachable", "connection"},
	{"timed out", "timeout"},
	{"timeout", "timeout"},
	{"out of memory", "memory"},
	{"cannot allocate memory", "memory"},
	{"no space left on device", "disk"},
	{"disk quota exceeded", "disk"},
}

// CategorizeError classifies failure output against the fixed ordered
// signature list. Unrecognized output yields "general-error".
func CategorizeError(output string) string {
	lowered := strings.ToLower(output)
	for _, sig := range errorSignatures {
		if strings.Contains(lowered, sig.substring) {
			return sig.category
		}
	}
	return ErrorCategoryGeneral
}
