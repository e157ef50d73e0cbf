package compiler

import (
	"fmt"
	"strings"
)

// Validation error codes (E100-E199)
const (
	// Definition errors (E101-E109)
	ErrNameInvalid        = "E101" // endpoint name empty or malformed
	ErrKindInvalid        = "E102" // kind not query or mutation
	ErrMethodInvalid      = "E103" // unknown HTTP method
	ErrPathInvalid        = "E104" // path empty or not rooted
	ErrDurationNegative   = "E105" // negative cache policy duration
	ErrDuplicateName      = "E106" // duplicate endpoint name
	ErrMutationStaleAfter = "E107" // staleAfter has no effect on mutations
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks one compiled definition against structural rules.
// Returns all errors found (does not fail-fast).
func Validate(def Definition) []ValidationError {
	var errs []ValidationError

	// E101: name must be usable as a cache key prefix
	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "endpoint name is required and must be non-empty",
			Code:    ErrNameInvalid,
		})
	} else if strings.ContainsAny(def.Name, "() \t\n") {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("endpoint name %q must not contain parentheses or whitespace", def.Name),
			Code:    ErrNameInvalid,
		})
	}

	// E102: kind must be query or mutation
	if def.Kind != "query" && def.Kind != "mutation" {
		errs = append(errs, ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("invalid kind %q, must be \"query\" or \"mutation\"", def.Kind),
			Code:    ErrKindInvalid,
		})
	}

	// E103: method must be a known HTTP verb
	if !isValidMethod(def.Method) {
		errs = append(errs, ValidationError{
			Field:   "method",
			Message: fmt.Sprintf("invalid HTTP method %q", def.Method),
			Code:    ErrMethodInvalid,
		})
	}

	// E104: path must be rooted
	if def.Path == "" || !strings.HasPrefix(def.Path, "/") {
		errs = append(errs, ValidationError{
			Field:   "path",
			Message: fmt.Sprintf("path %q must start with \"/\"", def.Path),
			Code:    ErrPathInvalid,
		})
	}

	// E105: cache policy durations must be non-negative
	if def.StaleAfter < 0 {
		errs = append(errs, ValidationError{
			Field:   "staleAfter",
			Message: "staleAfter must not be negative",
			Code:    ErrDurationNegative,
		})
	}
	if def.KeepUnusedFor < 0 {
		errs = append(errs, ValidationError{
			Field:   "keepUnusedFor",
			Message: "keepUnusedFor must not be negative",
			Code:    ErrDurationNegative,
		})
	}

	// E107: mutations are never cached, so staleness is meaningless
	if def.Kind == "mutation" && def.StaleAfter > 0 {
		errs = append(errs, ValidationError{
			Field:   "staleAfter",
			Message: "staleAfter has no effect on mutation endpoints",
			Code:    ErrMutationStaleAfter,
		})
	}

	return errs
}

// ValidateAll validates a set of definitions, adding duplicate-name
// detection on top of the per-definition checks.
func ValidateAll(defs []Definition) []ValidationError {
	var errs []ValidationError

	seen := make(map[string]bool)
	for i, def := range defs {
		// E106: duplicate endpoint name
		if seen[def.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("definitions[%d].name", i),
				Message: fmt.Sprintf("duplicate endpoint name: %q", def.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[def.Name] = true

		errs = append(errs, Validate(def)...)
	}

	return errs
}

// isValidMethod checks if a method string is a supported HTTP verb.
func isValidMethod(m string) bool {
	validMethods := map[string]bool{
		"GET":    true,
		"HEAD":   true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}
	return validMethods[m]
}
