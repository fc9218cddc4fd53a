package api

import (
	"net/http"

	"github.com/artpar/panel/internal/shell/api/openapi"
)

// apiRoutes documents the routes registered by Routes.
func apiRoutes() []openapi.Route {
	const servers = "/api/v1/servers"
	const server = servers + "/{id}"

	routes := []openapi.Route{
		{Method: http.MethodGet, Path: "/health", Summary: "Liveness probe", Tag: "Health", Response: HealthResponse{}},
		{Method: http.MethodGet, Path: "/ready", Summary: "Readiness probe", Tag: "Health", Response: ReadyResponse{}},

		{Method: http.MethodGet, Path: "/api/v1/plans", Summary: "List orderable plans", Tag: "Catalog", Response: ListPlansResponse{}},
		{Method: http.MethodGet, Path: "/api/v1/plans/{id}/quotes", Summary: "Price a plan for every billing period", Tag: "Billing", Response: ListQuotesResponse{}},
		{Method: http.MethodPost, Path: "/api/v1/quotes", Summary: "Price a checkout", Tag: "Billing", Request: QuoteRequest{}, Response: QuoteResponse{}},
		{Method: http.MethodGet, Path: "/api/v1/catalog/os-templates", Summary: "List OS templates", Tag: "Catalog", Query: []string{"plan_id"}, Response: ListOSTemplatesResponse{}},
		{Method: http.MethodGet, Path: "/api/v1/catalog/datacenters", Summary: "List locations", Tag: "Catalog", Response: ListDatacentersResponse{}},

		{Method: http.MethodPost, Path: servers, Summary: "Allocate a server", Tag: "Servers", Request: AllocateServerRequest{}, Response: AllocateServerResponse{}, Status: http.StatusCreated},
		{Method: http.MethodGet, Path: servers, Summary: "List servers", Tag: "Servers", Query: []string{"user_id", "limit", "offset"}, Response: ListServersResponse{}},
		{Method: http.MethodGet, Path: server, Summary: "Get a server", Tag: "Servers", Response: ServerResponse{}},
		{Method: http.MethodDelete, Path: server, Summary: "Delete a server", Tag: "Servers", Response: ActionResponse{}},
		{Method: http.MethodPut, Path: server + "/credentials", Summary: "Replace server credentials", Tag: "Servers", Request: UpdateCredentialsRequest{}, Response: ActionResponse{}},
		{Method: http.MethodGet, Path: server + "/activity", Summary: "Server audit trail", Tag: "Servers", Query: []string{"limit", "offset"}, Response: ListActivityResponse{}},

		{Method: http.MethodPost, Path: server + "/start", Summary: "Start a server", Tag: "Power", Response: ActionResponse{}},
		{Method: http.MethodPost, Path: server + "/stop", Summary: "Stop a server", Tag: "Power", Response: ActionResponse{}},
		{Method: http.MethodPost, Path: server + "/restart", Summary: "Restart a server", Tag: "Power", Response: ActionResponse{}},
	}

	for _, o := range []struct{ name, summary string }{
		{"provisioned", "Confirm provisioning finished"},
		{"suspend", "Suspend a server"},
		{"unsuspend", "Lift a suspension"},
		{"recover", "Recover a failed server"},
		{"fail", "Mark a server as failed"},
	} {
		routes = append(routes, openapi.Route{
			Method:   http.MethodPost,
			Path:     server + "/" + o.name,
			Summary:  o.summary,
			Tag:      "Operations",
			Response: ActionResponse{},
			Admin:    true,
		})
	}
	return routes
}
