package router

import "net/http"

// ParameterIn is the location of a documented parameter.
type ParameterIn string

const (
	ParameterInPath   ParameterIn = "path"
	ParameterInQuery  ParameterIn = "query"
	ParameterInHeader ParameterIn = "header"
)

// RouteSpec describes one HTTP operation. Everything besides Handler ends up in
// the OpenAPI document.
type RouteSpec struct {
	OperationID string
	Summary     string
	Description string
	Group       string
	// Deprecated, when set, is the deprecation notice.
	Deprecated  string
	RequestType *RequestBodySpec
	Parameters  map[string]ParameterSpec
	Responses   map[int]ResponseSpec
	Handler     http.HandlerFunc

	method   string
	fullPath string
}

type RequestBodySpec struct {
	Type     any
	Examples map[string]any
}

type ResponseSpec struct {
	Description string
	// Type is a zero value of the response body type, nil for no body.
	Type     any
	Examples map[string]any
}

type ParameterSpec struct {
	In          ParameterIn
	Description string
	Required    bool
	// Type is a pointer to a value of the parameter type, e.g. new(int).
	Type any
}
