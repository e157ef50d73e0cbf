package httpquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
)

func getExtra(method, path string) quiver.ExtraOptions {
	return quiver.ExtraOptions{"method": method, "path": path}
}

func TestBuildRequestPassesThroughPreparedRequest(t *testing.T) {
	prepared := Request{Method: "PUT", Path: "/custom", Header: map[string]string{"X-Trace": "1"}}

	req, err := buildRequest(prepared, nil)
	require.NoError(t, err)
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "/custom", req.Path)
	assert.Equal(t, "1", req.Header["X-Trace"])

	req, err = buildRequest(&prepared, nil)
	require.NoError(t, err)
	assert.Equal(t, "/custom", req.Path)
}

func TestBuildRequestFillsPathPlaceholders(t *testing.T) {
	arg := argval.NewObject(
		argval.P("id", argval.Int(42)),
		argval.P("expand", argval.String("author")),
	)

	req, err := buildRequest(arg, getExtra("GET", "/posts/{id}"))
	require.NoError(t, err)

	assert.Equal(t, "/posts/42", req.Path)
	assert.Equal(t, map[string]string{"expand": "author"}, req.Query, "consumed properties stay out of the query")
}

func TestBuildRequestEscapesPathValues(t *testing.T) {
	arg := argval.NewObject(argval.P("slug", argval.String("a/b c")))

	req, err := buildRequest(arg, getExtra("GET", "/pages/{slug}"))
	require.NoError(t, err)
	assert.Equal(t, "/pages/a%2Fb%20c", req.Path)
}

func TestBuildRequestMissingPlaceholderProperty(t *testing.T) {
	arg := argval.NewObject(argval.P("name", argval.String("x")))

	_, err := buildRequest(arg, getExtra("GET", "/posts/{id}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `placeholder "id"`)
}

func TestBuildRequestNilArgNoParams(t *testing.T) {
	req, err := buildRequest(nil, getExtra("GET", "/feed"))
	require.NoError(t, err)
	assert.Equal(t, "/feed", req.Path)
	assert.Empty(t, req.Query)
	assert.Nil(t, req.Body)
}

func TestBuildRequestQueryParamRendering(t *testing.T) {
	arg := argval.NewObject(
		argval.P("q", argval.String("hello world")),
		argval.P("page", argval.Int(3)),
		argval.P("exact", argval.Bool(true)),
	)

	req, err := buildRequest(arg, getExtra("GET", "/search"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"q":     "hello world",
		"page":  "3",
		"exact": "true",
	}, req.Query)
}

func TestBuildRequestPostBodyFromObject(t *testing.T) {
	arg := argval.NewObject(
		argval.P("id", argval.Int(7)),
		argval.P("title", argval.String("draft")),
	)

	req, err := buildRequest(arg, getExtra("POST", "/posts/{id}/title"))
	require.NoError(t, err)

	assert.Equal(t, "/posts/7/title", req.Path)
	require.IsType(t, argval.Object{}, req.Body)
	body := req.Body.(argval.Object)
	assert.Equal(t, argval.String("draft"), body["title"])
	_, hasID := body["id"]
	assert.False(t, hasID, "consumed properties stay out of the body")
}

func TestBuildRequestPostBodyFromNonObject(t *testing.T) {
	arg := argval.Array{argval.Int(1), argval.Int(2)}

	req, err := buildRequest(arg, getExtra("POST", "/batch"))
	require.NoError(t, err)
	assert.Equal(t, arg, req.Body)
}

func TestBuildRequestGetRejectsNonObjectArg(t *testing.T) {
	_, err := buildRequest(argval.String("loose"), getExtra("GET", "/posts"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be objects")
}

func TestBuildRequestMissingExtraOptions(t *testing.T) {
	_, err := buildRequest(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"method" and "path"`)
}

func TestBuildRequestRejectsUnknownInputType(t *testing.T) {
	_, err := buildRequest(struct{ X int }{1}, getExtra("GET", "/x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported input type")
}

func TestRenderParamCanonicalForms(t *testing.T) {
	assert.Equal(t, "plain", renderParam(argval.String("plain")))
	assert.Equal(t, "42", renderParam(argval.Int(42)))
	assert.Equal(t, "true", renderParam(argval.Bool(true)))
	assert.Equal(t, "null", renderParam(argval.Null{}))
	assert.Equal(t, `[1,2]`, renderParam(argval.Array{argval.Int(1), argval.Int(2)}))
}
