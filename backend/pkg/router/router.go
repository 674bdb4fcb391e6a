// Package router wraps chi so that every registered route is also described in
// an OpenAPI document.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RouteBuilder struct {
	l      *slog.Logger
	r      chi.Router
	doc    *Document
	prefix string
}

// NewRouteBuilder returns a builder on a fresh chi mux. doc may be nil when no
// OpenAPI document is wanted.
func NewRouteBuilder(l *slog.Logger, doc *Document) (*RouteBuilder, error) {
	if l == nil {
		return nil, errors.New("logger is required")
	}

	return &RouteBuilder{
		l:   l.With(slog.String("component", "router")),
		r:   chi.NewRouter(),
		doc: doc,
	}, nil
}

// Router returns the underlying chi router for routes that are not documented.
func (rb *RouteBuilder) Router() chi.Router {
	return rb.r
}

func (rb *RouteBuilder) Document() *Document {
	return rb.doc
}

func (rb *RouteBuilder) Use(middlewares ...func(http.Handler) http.Handler) {
	rb.r.Use(middlewares...)
}

// Route mounts a sub-router at pattern.
func (rb *RouteBuilder) Route(pattern string, fn func(rb *RouteBuilder)) {
	rb.r.Route(pattern, func(r chi.Router) {
		fn(&RouteBuilder{
			l:      rb.l,
			r:      r,
			doc:    rb.doc,
			prefix: sanitizePath(rb.prefix + pattern),
		})
	})
}

func (rb *RouteBuilder) Get(path string, spec RouteSpec) error {
	return rb.handle(http.MethodGet, path, spec)
}

func (rb *RouteBuilder) Post(path string, spec RouteSpec) error {
	return rb.handle(http.MethodPost, path, spec)
}

func (rb *RouteBuilder) Put(path string, spec RouteSpec) error {
	return rb.handle(http.MethodPut, path, spec)
}

func (rb *RouteBuilder) Delete(path string, spec RouteSpec) error {
	return rb.handle(http.MethodDelete, path, spec)
}

func (rb *RouteBuilder) MustGet(path string, spec RouteSpec) {
	rb.must(rb.Get(path, spec))
}

func (rb *RouteBuilder) MustPost(path string, spec RouteSpec) {
	rb.must(rb.Post(path, spec))
}

func (rb *RouteBuilder) MustPut(path string, spec RouteSpec) {
	rb.must(rb.Put(path, spec))
}

func (rb *RouteBuilder) MustDelete(path string, spec RouteSpec) {
	rb.must(rb.Delete(path, spec))
}

func (rb *RouteBuilder) must(err error) {
	if err != nil {
		panic(err)
	}
}

func (rb *RouteBuilder) handle(method, path string, spec RouteSpec) error {
	spec.method = method
	spec.fullPath = sanitizePath(rb.prefix + "/" + path)

	if err := validateRouteSpec(spec); err != nil {
		return fmt.Errorf("invalid route %s %s: %w", method, spec.fullPath, err)
	}

	if err := validateParameters(spec); err != nil {
		return fmt.Errorf("invalid route %s %s: %w", method, spec.fullPath, err)
	}

	if rb.doc != nil {
		if err := rb.doc.register(spec); err != nil {
			return fmt.Errorf("failed to document route %s %s: %w", method, spec.fullPath, err)
		}
	}

	rb.r.Method(method, path, spec.Handler)
	rb.l.Debug("registered route", slog.String("method", method), slog.String("path", spec.fullPath))

	return nil
}
