// Package openapi builds the OpenAPI 3 document for the panel API by
// reflecting on the request and response types of each registered route.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI document from registered routes.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	routes      []Route
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Route describes one operation.
type Route struct {
	Method   string
	Path     string // chi-style, e.g. /api/v1/servers/{id}
	Summary  string
	Tag      string
	Request  any   // request body model, nil for none
	Response any   // 2xx body model, nil for none
	Status   int   // success status; defaults to 200
	Query    []string
	Admin    bool
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Panel API",
		version:     "1.0.0",
		description: "VPS and RDP hosting panel",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds routes to the document.
func (g *Generator) Register(routes ...Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, routes...)
	g.cachedSpec = nil
}

// Generate produces the document. The result is cached until the next Register.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
			SecuritySchemes: openapi3.SecuritySchemes{
				"userID": &openapi3.SecuritySchemeRef{
					Value: openapi3.NewSecurityScheme().WithType("apiKey").WithIn("header").WithName("X-User-ID"),
				},
			},
		},
	}
	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	spec.Components.Schemas["Error"] = g.schemaRef(reflect.TypeOf(errorBody{}))

	for _, rt := range g.routes {
		g.addRoute(spec, rt)
	}

	g.cachedSpec = spec
	return spec
}

// Handler serves the document as JSON.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "failed to encode OpenAPI document", http.StatusInternalServerError)
		}
	}
}

// errorBody mirrors the API error envelope.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// =============================================================================
// Paths
// =============================================================================

func (g *Generator) addRoute(spec *openapi3.T, rt Route) {
	item := spec.Paths.Value(rt.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		spec.Paths.Set(rt.Path, item)
	}

	op := &openapi3.Operation{
		OperationID: operationID(rt.Method, rt.Path),
		Summary:     rt.Summary,
		Responses:   openapi3.NewResponses(),
	}
	if rt.Tag != "" {
		op.Tags = []string{rt.Tag}
	}
	if rt.Admin {
		op.Description = "Requires X-User-Role: admin."
	}

	for _, name := range pathParams(rt.Path) {
		op.AddParameter(openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()))
	}
	for _, name := range rt.Query {
		op.AddParameter(openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()))
	}

	if rt.Request != nil {
		name := g.component(spec, rt.Request)
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/"+name, nil)),
		}
	}

	status := rt.Status
	if status == 0 {
		status = http.StatusOK
	}
	ok := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if rt.Response != nil {
		name := g.component(spec, rt.Response)
		ok = ok.WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/"+name, nil))
	}
	op.AddResponse(status, ok)
	op.Responses.Set("default", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("Error").
			WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/Error", nil)),
	})

	item.SetOperation(rt.Method, op)
}

// component registers the model's schema and returns its name.
func (g *Generator) component(spec *openapi3.T, model any) string {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if _, ok := spec.Components.Schemas[name]; !ok {
		spec.Components.Schemas[name] = g.schemaRef(t)
	}
	return name
}

// =============================================================================
// Schema Generation
// =============================================================================

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

func (g *Generator) schemaRef(t reflect.Type) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: g.structSchema(t)}
}

func (g *Generator) structSchema(t reflect.Type) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(jsonTag, ",")
		if name == "" {
			name = field.Name
		}

		schema.WithPropertyRef(name, g.typeSchema(field.Type))
		if !strings.Contains(opts, "omitempty") && field.Type.Kind() != reflect.Ptr {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func (g *Generator) typeSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return openapi3.NewStringSchema().NewRef()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return openapi3.NewInt32Schema().NewRef()

	case reflect.Int64:
		return openapi3.NewInt64Schema().NewRef()

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema().NewRef()

	case reflect.Float32, reflect.Float64:
		return openapi3.NewFloat64Schema().NewRef()

	case reflect.Bool:
		return openapi3.NewBoolSchema().NewRef()

	case reflect.Slice, reflect.Array:
		return openapi3.NewArraySchema().WithItems(g.typeSchema(t.Elem()).Value).NewRef()

	case reflect.Map:
		return openapi3.NewObjectSchema().WithAnyAdditionalProperties().NewRef()

	case reflect.Ptr:
		ref := g.typeSchema(t.Elem())
		ref.Value.Nullable = true
		return ref

	case reflect.Struct:
		switch t {
		case timeType:
			return openapi3.NewDateTimeSchema().NewRef()
		case decimalType:
			return openapi3.NewStringSchema().WithFormat("decimal").NewRef()
		}
		return &openapi3.SchemaRef{Value: g.structSchema(t)}

	default:
		return openapi3.NewObjectSchema().NewRef()
	}
}

// =============================================================================
// Helpers
// =============================================================================

// pathParams returns the {name} segments of a path in order.
func pathParams(path string) []string {
	var params []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, seg[1:len(seg)-1])
		}
	}
	return params
}

// operationID builds a camelCase id such as postApiV1ServersIdRestart.
func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, seg := range strings.Split(path, "/") {
		seg = strings.Trim(seg, "{}")
		for _, part := range strings.FieldsFunc(seg, func(r rune) bool { return r == '-' || r == '_' }) {
			b.WriteString(capitalize(part))
		}
	}
	return b.String()
}

// capitalize returns the string with the first letter capitalized.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
