// ABOUTME: Client for the metrics explorer service
// ABOUTME: Dashboard-centric workflow: overview, search, metrics, variables, query

package tools

import (
	"context"
	"log/slog"
	"net/url"
)

// MetricsClient wraps the metrics explorer REST API. Query endpoints
// authenticate via the X-Organization-Id header rather than the path.
type MetricsClient struct {
	serviceClient
	orgID string
}

func NewMetricsClient(baseURL, orgID string, logger *slog.Logger) *MetricsClient {
	return &MetricsClient{
		serviceClient: newServiceClient(baseURL, logger, "metrics_explorer"),
		orgID:         orgID,
	}
}

func (c *MetricsClient) orgPrefix() string {
	return "/api/v1/organizations/" + c.orgID
}

func (c *MetricsClient) orgHeader() map[string]string {
	return map[string]string{"X-Organization-Id": c.orgID}
}

// GetOrganization returns org details including used_dashboards and providers.
func (c *MetricsClient) GetOrganization(ctx context.Context) (any, error) {
	return c.getJSON(ctx, c.orgPrefix(), nil, nil)
}

// GetUsedDashboards returns full details for dashboards marked as important.
func (c *MetricsClient) GetUsedDashboards(ctx context.Context) (any, error) {
	return c.getJSON(ctx, c.orgPrefix()+"/used-dashboards", nil, nil)
}

// SearchDashboards searches dashboards by wildcard pattern. Space-separated
// terms are OR'd.
func (c *MetricsClient) SearchDashboards(ctx context.Context, search string) (any, error) {
	params := url.Values{}
	params.Set("search", search)
	return c.getJSON(ctx, c.orgPrefix()+"/dashboards/search", params, nil)
}

// SearchMetrics searches widgets within a dashboard. dashboardDBID is the
// database UUID, not the provider dashboard id.
func (c *MetricsClient) SearchMetrics(ctx context.Context, dashboardDBID, search string) (any, error) {
	if search == "" {
		search = "*"
	}
	params := url.Values{}
	params.Set("search", search)
	return c.getJSON(ctx, c.orgPrefix()+"/dashboards/"+dashboardDBID+"/metrics/search", params, nil)
}

// ListTemplateVariables lists a dashboard's template variables with resolved values.
func (c *MetricsClient) ListTemplateVariables(ctx context.Context, dashboardDBID string) (any, error) {
	params := url.Values{}
	params.Set("dashboard_id", dashboardDBID)
	return c.getJSON(ctx, c.orgPrefix()+"/template-variables", params, nil)
}

// GetVariableValues returns the resolved values for one template variable,
// optionally narrowed by search for high-cardinality variables.
func (c *MetricsClient) GetVariableValues(ctx context.Context, dashboardDBID, variableName, search string) (any, error) {
	params := url.Values{}
	if search != "" {
		params.Set("search", search)
	}
	return c.getJSON(ctx, c.orgPrefix()+"/dashboards/"+dashboardDBID+"/variables/"+variableName+"/values", params, nil)
}

// QueryMetrics executes metric queries against a dashboard. dashboardProviderID
// is the provider's id (e.g. "4k2-qvg-h38"), not the database UUID.
func (c *MetricsClient) QueryMetrics(ctx context.Context, dashboardProviderID string, queries []map[string]any, timeRange map[string]any) (any, error) {
	body := map[string]any{"queries": queries, "time_range": timeRange}
	return c.postJSON(ctx, "/api/v1/dashboards/"+dashboardProviderID+"/query", body, c.orgHeader())
}
