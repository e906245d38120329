// ABOUTME: Client for the logs explorer service
// ABOUTME: Index and source discovery plus time-bounded log search

package tools

import (
	"context"
	"log/slog"
)

// LogsClient wraps the logs explorer REST API.
type LogsClient struct {
	serviceClient
	orgID string
}

func NewLogsClient(baseURL, orgID string, logger *slog.Logger) *LogsClient {
	return &LogsClient{
		serviceClient: newServiceClient(baseURL, logger, "logs_explorer"),
		orgID:         orgID,
	}
}

func (c *LogsClient) orgPrefix() string {
	return "/api/v1/organizations/" + c.orgID
}

// GetOrganization returns org details including the used_indexes list.
func (c *LogsClient) GetOrganization(ctx context.Context) (any, error) {
	return c.getJSON(ctx, c.orgPrefix(), nil, nil)
}

// SearchSources searches log sources (services) across indexes. Space-separated
// terms are OR'd; * wildcards are supported.
func (c *LogsClient) SearchSources(ctx context.Context, search, repositoryID string) (any, error) {
	body := map[string]any{"search": search}
	if repositoryID != "" {
		body["repository_id"] = repositoryID
	}
	return c.postJSON(ctx, c.orgPrefix()+"/sources/search", body, nil)
}

// SearchLogs searches logs in one index within an ISO 8601 time window.
func (c *LogsClient) SearchLogs(ctx context.Context, index, fromTime, toTime, source string, query []string, maxResults int) (any, error) {
	body := map[string]any{
		"index":       index,
		"from_time":   fromTime,
		"to_time":     toTime,
		"max_results": maxResults,
	}
	if source != "" {
		body["source"] = source
	}
	if len(query) > 0 {
		body["query"] = query
	}
	return c.postJSON(ctx, c.orgPrefix()+"/search", body, nil)
}
