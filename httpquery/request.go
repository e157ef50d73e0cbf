package httpquery

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
)

// Request is one fully specified HTTP call. Prepare hooks return it to
// take full control of the wire request; otherwise one is derived from
// the argument value and the endpoint's "method" and "path" extra
// options.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Header map[string]string
	Body   argval.Value
}

// placeholderPattern matches {name} segments in path templates.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// buildRequest turns the dispatch input into a Request.
//
// Accepted inputs:
//   - Request or *Request: used as-is (a prepare hook built it)
//   - argval.Value or nil: derived from the endpoint's extra options
//
// Derivation fills {name} path placeholders from same-named argument
// properties, then routes the remaining properties to query parameters
// (GET, HEAD, DELETE) or a JSON body (everything else).
func buildRequest(input any, extra quiver.ExtraOptions) (*Request, error) {
	switch in := input.(type) {
	case *Request:
		return in, nil
	case Request:
		return &in, nil
	case nil:
		return fromArg(nil, extra)
	case argval.Value:
		return fromArg(in, extra)
	default:
		return nil, fmt.Errorf("unsupported input type %T: prepare hooks used with httpquery must return httpquery.Request", input)
	}
}

func fromArg(arg argval.Value, extra quiver.ExtraOptions) (*Request, error) {
	method, _ := extra["method"].(string)
	path, _ := extra["path"].(string)
	if method == "" || path == "" {
		return nil, fmt.Errorf(`endpoint extra options must carry "method" and "path" to derive HTTP requests`)
	}

	req := &Request{Method: strings.ToUpper(method), Path: path}
	obj, isObj := arg.(argval.Object)

	consumed := make(map[string]bool)
	var missing string
	req.Path = placeholderPattern.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		if !isObj {
			missing = name
			return m
		}
		v, ok := obj[name]
		if !ok {
			missing = name
			return m
		}
		consumed[name] = true
		return url.PathEscape(renderParam(v))
	})
	if missing != "" {
		return nil, fmt.Errorf("path %s: no argument property for placeholder %q", path, missing)
	}

	if arg == nil {
		return req, nil
	}

	rest := make(argval.Object)
	if isObj {
		for k, v := range obj {
			if !consumed[k] {
				rest[k] = v
			}
		}
	}

	switch req.Method {
	case "GET", "HEAD", "DELETE":
		if !isObj {
			return nil, fmt.Errorf("%s arguments must be objects to map to query parameters, got %T", req.Method, arg)
		}
		if len(rest) > 0 {
			req.Query = make(map[string]string, len(rest))
			for k, v := range rest {
				req.Query[k] = renderParam(v)
			}
		}
	default:
		if isObj {
			if len(rest) > 0 {
				req.Body = rest
			}
		} else {
			req.Body = arg
		}
	}

	return req, nil
}

// renderParam renders a value for a path segment or query parameter.
// Strings are used verbatim; everything else renders canonically.
func renderParam(v argval.Value) string {
	if s, ok := v.(argval.String); ok {
		return string(s)
	}
	return argval.MustCanonical(v)
}
