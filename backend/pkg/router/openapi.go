package router

import (
	"encoding"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/oasdiff/yaml"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	OpenAPIVersion  = "3.0.3"
	jsonContentType = "application/json"
)

// APIInfo is the top-level metadata of the generated document.
type APIInfo struct {
	Title       string
	Version     string
	Description string
	Servers     []ServerInfo
}

type ServerInfo struct {
	URL         string
	Description string
}

// Document collects registered routes into an OpenAPI description.
type Document struct {
	mu    sync.RWMutex
	spec  *openapi3.T
	ops   map[string]struct{}
	tags  map[string]struct{}
	caser cases.Caser
}

func NewDocument(info APIInfo) *Document {
	spec := &openapi3.T{
		OpenAPI: OpenAPIVersion,
		Info: &openapi3.Info{
			Title:       info.Title,
			Version:     info.Version,
			Description: info.Description,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}

	for _, s := range info.Servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: s.URL, Description: s.Description})
	}

	return &Document{
		spec:  spec,
		ops:   map[string]struct{}{},
		tags:  map[string]struct{}{},
		caser: cases.Title(language.English),
	}
}

// register adds the operation described by spec. OperationIDs must be unique.
func (d *Document) register(spec RouteSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.ops[spec.OperationID]; exists {
		return fmt.Errorf("duplicate operationID: %s", spec.OperationID)
	}

	op := openapi3.NewOperation()
	op.OperationID = spec.OperationID
	op.Summary = spec.Summary
	op.Description = spec.Description
	op.Deprecated = spec.Deprecated != ""

	if op.Deprecated {
		op.Description += "\n\nDeprecated: " + spec.Deprecated
	}

	tag := d.caser.String(spec.Group)
	op.Tags = []string{tag}

	if _, ok := d.tags[tag]; !ok {
		d.tags[tag] = struct{}{}
		d.spec.Tags = append(d.spec.Tags, &openapi3.Tag{Name: tag})
		sort.Slice(d.spec.Tags, func(i, j int) bool { return d.spec.Tags[i].Name < d.spec.Tags[j].Name })
	}

	names := make([]string, 0, len(spec.Parameters))
	for name := range spec.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		param, err := d.parameter(name, spec.Parameters[name])
		if err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}

		op.AddParameter(param)
	}

	if spec.RequestType != nil {
		ref, err := d.schemaFor(spec.RequestType.Type)
		if err != nil {
			return fmt.Errorf("request body: %w", err)
		}

		body := openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref)
		setExamples(body.Content, spec.RequestType.Examples)
		op.RequestBody = &openapi3.RequestBodyRef{Value: body}
	}

	op.Responses = openapi3.NewResponsesWithCapacity(len(spec.Responses))

	for code, r := range spec.Responses {
		resp := openapi3.NewResponse().WithDescription(r.Description)

		if r.Type != nil {
			ref, err := d.schemaFor(r.Type)
			if err != nil {
				return fmt.Errorf("response %d: %w", code, err)
			}

			resp = resp.WithJSONSchemaRef(ref)
			setExamples(resp.Content, r.Examples)
		}

		op.Responses.Set(strconv.Itoa(code), &openapi3.ResponseRef{Value: resp})
	}

	d.spec.AddOperation(openAPIPath(spec.fullPath), spec.method, op)
	d.ops[spec.OperationID] = struct{}{}

	return nil
}

func (d *Document) parameter(name string, p ParameterSpec) (*openapi3.Parameter, error) {
	var param *openapi3.Parameter

	switch p.In {
	case ParameterInPath:
		param = openapi3.NewPathParameter(name)
	case ParameterInQuery:
		param = openapi3.NewQueryParameter(name)
	case ParameterInHeader:
		param = openapi3.NewHeaderParameter(name)
	default:
		return nil, fmt.Errorf("unsupported location %q", p.In)
	}

	ref, err := d.schemaFor(p.Type)
	if err != nil {
		return nil, err
	}

	param.Description = p.Description
	param.Required = p.Required
	param.Schema = ref

	return param, nil
}

// schemaFor derives a schema from a Go value. Named struct types are added to the
// components and referenced.
func (d *Document) schemaFor(v any) (*openapi3.SchemaRef, error) {
	ref, err := openapi3gen.NewSchemaRefForValue(v, d.spec.Components.Schemas, openapi3gen.SchemaCustomizer(textSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %T: %w", v, err)
	}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct || t.Name() == "" || t.PkgPath() == "time" {
		return ref, nil
	}

	name := t.Name()
	if _, exists := d.spec.Components.Schemas[name]; !exists {
		d.spec.Components.Schemas[name] = ref
	}

	return openapi3.NewSchemaRef("#/components/schemas/"+name, ref.Value), nil
}

//nolint:gochecknoglobals // Reflected interface type
var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// textSchema documents non-struct types with a text encoding, such as enums
// backed by integers, as strings.
func textSchema(_ string, t reflect.Type, _ reflect.StructTag, schema *openapi3.Schema) error {
	if t.Kind() == reflect.Struct || !t.Implements(textMarshalerType) {
		return nil
	}

	schema.Type = &openapi3.Types{openapi3.TypeString}
	schema.Format = ""
	schema.Min = nil
	schema.Max = nil

	return nil
}

func setExamples(content openapi3.Content, examples map[string]any) {
	if len(examples) == 0 {
		return
	}

	mt := content.Get(jsonContentType)
	if mt == nil {
		return
	}

	mt.Examples = openapi3.Examples{}
	for name, v := range examples {
		mt.Examples[name] = &openapi3.ExampleRef{Value: openapi3.NewExample(v)}
	}
}

// Spec returns the collected document.
func (d *Document) Spec() *openapi3.T {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.spec
}

func (d *Document) JSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.spec.MarshalJSON()
}

func (d *Document) YAML() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return yaml.Marshal(d.spec)
}

// Handler serves the document as YAML when the path ends in .yaml or .yml and as
// JSON otherwise.
func (d *Document) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			data        []byte
			err         error
			contentType string
		)

		if strings.HasSuffix(r.URL.Path, ".yaml") || strings.HasSuffix(r.URL.Path, ".yml") {
			data, err = d.YAML()
			contentType = "application/yaml"
		} else {
			data, err = d.JSON()
			contentType = jsonContentType
		}

		if err != nil {
			http.Error(w, "failed to render OpenAPI document", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}
