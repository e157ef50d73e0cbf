package compiler

import (
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/quiverlabs/quiver"
)

// Definition is one compiled endpoint declaration. Compilation resolves
// defaults, so a Definition is ready to register as-is: Method is filled
// from Kind when omitted, and query definitions carry a concrete
// KeepUnusedFor.
type Definition struct {
	// Name is the endpoint name, taken from the CUE field label.
	Name string

	// Kind is "query" or "mutation".
	Kind string

	// Method is the HTTP verb the transport layer should use.
	Method string

	// Path is the URL path template, e.g. "/posts/{id}".
	Path string

	// StaleAfter bounds how long fulfilled entries are served from
	// cache. Zero disables time-based staleness.
	StaleAfter time.Duration

	// KeepUnusedFor is the eviction grace period for query entries.
	// Always zero for mutations.
	KeepUnusedFor time.Duration

	// Description is free-form documentation text.
	Description string
}

// CompileDefinition parses a CUE value into a Definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the endpoint struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`endpoint: getPost: { ... }`)
//	def, err := CompileDefinition(v.LookupPath(cue.ParsePath("endpoint.getPost")))
func CompileDefinition(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &Definition{}

	// Endpoint name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}

	// Parse kind (required)
	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, &CompileError{
			Field:   "kind",
			Message: "kind is required",
			Pos:     v.Pos(),
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	def.Kind = kind

	// Parse path (required)
	pathVal := v.LookupPath(cue.ParsePath("path"))
	if !pathVal.Exists() {
		return nil, &CompileError{
			Field:   "path",
			Message: "path is required",
			Pos:     v.Pos(),
		}
	}
	path, err := pathVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	def.Path = path

	// Parse method (optional, defaulted from kind)
	methodVal := v.LookupPath(cue.ParsePath("method"))
	if methodVal.Exists() {
		method, err := methodVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		def.Method = strings.ToUpper(method)
	} else {
		def.Method = defaultMethod(def.Kind)
	}

	// Parse cache policy durations (optional)
	def.StaleAfter, err = parseDurationField(v, "staleAfter")
	if err != nil {
		return nil, err
	}

	keepVal := v.LookupPath(cue.ParsePath("keepUnusedFor"))
	switch {
	case keepVal.Exists():
		def.KeepUnusedFor, err = parseDurationField(v, "keepUnusedFor")
		if err != nil {
			return nil, err
		}
	case def.Kind == string(quiver.KindQuery):
		def.KeepUnusedFor = quiver.DefaultKeepUnusedFor
	}

	// Parse description (optional)
	descVal := v.LookupPath(cue.ParsePath("description"))
	if descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		def.Description = desc
	}

	return def, nil
}

// parseDurationField reads an optional duration field expressed as a Go
// duration string ("30s", "5m"). Returns zero when the field is absent.
func parseDurationField(v cue.Value, field string) (time.Duration, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return 0, nil
	}

	raw, err := fieldVal.String()
	if err != nil {
		return 0, formatCUEError(err)
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration %q: must be a Go duration string like \"30s\"", raw),
			Pos:     fieldVal.Pos(),
		}
	}
	return d, nil
}

// defaultMethod picks the conventional HTTP verb for a kind.
func defaultMethod(kind string) string {
	if kind == string(quiver.KindMutation) {
		return "POST"
	}
	return "GET"
}

// Register defines every compiled endpoint on the client. Each
// definition is validated first; the first invalid definition aborts
// registration. Method and path travel to the base query through the
// endpoint's extra options under the "method" and "path" keys.
func Register(c *quiver.Client, defs []Definition) error {
	for _, def := range defs {
		if errs := Validate(def); len(errs) > 0 {
			return fmt.Errorf("definition %q: %w", def.Name, errs[0])
		}

		opts := []quiver.EndpointOption{
			quiver.WithExtraOptions(quiver.ExtraOptions{
				"method": def.Method,
				"path":   def.Path,
			}),
		}

		switch quiver.Kind(def.Kind) {
		case quiver.KindQuery:
			if def.StaleAfter > 0 {
				opts = append(opts, quiver.WithStaleAfter(def.StaleAfter))
			}
			opts = append(opts, quiver.WithKeepUnusedFor(def.KeepUnusedFor))
			if _, err := c.DefineQuery(def.Name, opts...); err != nil {
				return fmt.Errorf("define query %q: %w", def.Name, err)
			}
		case quiver.KindMutation:
			if _, err := c.DefineMutation(def.Name, opts...); err != nil {
				return fmt.Errorf("define mutation %q: %w", def.Name, err)
			}
		}
	}
	return nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
