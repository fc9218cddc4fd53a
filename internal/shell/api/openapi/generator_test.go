package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetRequest struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

type widgetResponse struct {
	ID      string            `json:"id"`
	Price   decimal.Decimal   `json:"price"`
	Tags    []string          `json:"tags"`
	Labels  map[string]string `json:"labels,omitempty"`
	Created time.Time         `json:"created_at"`
	Deleted *time.Time        `json:"deleted_at,omitempty"`
	Secret  string            `json:"-"`
}

func newTestGenerator() *Generator {
	g := NewGenerator(WithTitle("Test API"), WithVersion("9.9.9"), WithServer("http://localhost:8080"))
	g.Register(
		Route{Method: http.MethodPost, Path: "/api/v1/widgets", Summary: "Create", Tag: "Widgets", Request: widgetRequest{}, Response: widgetResponse{}, Status: http.StatusCreated},
		Route{Method: http.MethodGet, Path: "/api/v1/widgets/{id}", Summary: "Get", Tag: "Widgets", Response: widgetResponse{}},
		Route{Method: http.MethodPost, Path: "/api/v1/widgets/{id}/freeze", Summary: "Freeze", Admin: true, Query: []string{"reason"}},
	)
	return g
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestGenerate_Info(t *testing.T) {
	spec := newTestGenerator().Generate()

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "Test API", spec.Info.Title)
	assert.Equal(t, "9.9.9", spec.Info.Version)
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "http://localhost:8080", spec.Servers[0].URL)
}

func TestGenerate_Paths(t *testing.T) {
	spec := newTestGenerator().Generate()

	create := spec.Paths.Value("/api/v1/widgets")
	require.NotNil(t, create)
	require.NotNil(t, create.Post)
	assert.Equal(t, "postApiV1Widgets", create.Post.OperationID)
	assert.NotNil(t, create.Post.RequestBody)
	assert.NotNil(t, create.Post.Responses.Status(http.StatusCreated))

	get := spec.Paths.Value("/api/v1/widgets/{id}")
	require.NotNil(t, get)
	require.NotNil(t, get.Get)
	require.Len(t, get.Get.Parameters, 1)
	assert.Equal(t, "id", get.Get.Parameters[0].Value.Name)
	assert.Equal(t, "path", get.Get.Parameters[0].Value.In)

	freeze := spec.Paths.Value("/api/v1/widgets/{id}/freeze")
	require.NotNil(t, freeze)
	require.NotNil(t, freeze.Post)
	assert.Len(t, freeze.Post.Parameters, 2)
	assert.Contains(t, freeze.Post.Description, "admin")
}

func TestGenerate_Schemas(t *testing.T) {
	spec := newTestGenerator().Generate()

	resp := spec.Components.Schemas["widgetResponse"]
	require.NotNil(t, resp)
	props := resp.Value.Properties

	assert.Contains(t, props, "id")
	assert.NotContains(t, props, "Secret")
	assert.True(t, props["price"].Value.Type.Is("string"))
	assert.Equal(t, "date-time", props["created_at"].Value.Format)
	assert.True(t, props["deleted_at"].Value.Nullable)
	assert.True(t, props["tags"].Value.Type.Is("array"))

	assert.Contains(t, resp.Value.Required, "id")
	assert.NotContains(t, resp.Value.Required, "labels")
	assert.NotContains(t, resp.Value.Required, "deleted_at")

	assert.Contains(t, spec.Components.Schemas, "Error")
}

func TestGenerate_CachedUntilRegister(t *testing.T) {
	g := newTestGenerator()
	first := g.Generate()
	assert.Same(t, first, g.Generate())

	g.Register(Route{Method: http.MethodGet, Path: "/ping"})
	second := g.Generate()
	assert.NotSame(t, first, second)
	assert.NotNil(t, second.Paths.Value("/ping"))
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestGenerator().Handler()(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/v1/widgets")
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestOperationID(t *testing.T) {
	assert.Equal(t, "getApiV1CatalogOsTemplates", operationID("GET", "/api/v1/catalog/os-templates"))
	assert.Equal(t, "postApiV1ServersIdRestart", operationID("POST", "/api/v1/servers/{id}/restart"))
}

func TestPathParams(t *testing.T) {
	assert.Equal(t, []string{"id"}, pathParams("/api/v1/servers/{id}/activity"))
	assert.Nil(t, pathParams("/health"))
}
