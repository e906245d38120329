// ABOUTME: Client for the code parser service
// ABOUTME: Repository, entry point, flow, and file lookups scoped to an org and repo

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// CodeParserClient wraps the code parser REST API. All repo-scoped endpoints
// live under /api/v1/orgs/{org_id}/repos/{repo_id}.
type CodeParserClient struct {
	serviceClient
	orgID  string
	repoID string
}

func NewCodeParserClient(baseURL, orgID, repoID string, logger *slog.Logger) *CodeParserClient {
	return &CodeParserClient{
		serviceClient: newServiceClient(baseURL, logger, "code_parser"),
		orgID:         orgID,
		repoID:        repoID,
	}
}

// resolveRepo picks the repo to target: an explicit id from the tool args
// wins, then the org's configured default.
func (c *CodeParserClient) resolveRepo(repoID string) string {
	if repoID != "" {
		return repoID
	}
	return c.repoID
}

func (c *CodeParserClient) repoPrefix(repoID string) string {
	return fmt.Sprintf("/api/v1/orgs/%s/repos/%s", c.orgID, c.resolveRepo(repoID))
}

// ListRepositories lists the org's repositories, optionally filtered by a
// regex search on name.
func (c *CodeParserClient) ListRepositories(ctx context.Context, search string, limit int) (any, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", strconv.Itoa(limit))
	return c.getJSON(ctx, fmt.Sprintf("/api/v1/orgs/%s/repos", c.orgID), params, nil)
}

// GetRepository returns metadata for one repository. The API has no single-repo
// endpoint, so this lists and filters client-side.
func (c *CodeParserClient) GetRepository(ctx context.Context, repoID string) (any, error) {
	target := c.resolveRepo(repoID)
	repos, err := c.ListRepositories(ctx, "", 100)
	if err != nil {
		return nil, err
	}
	if list, ok := repos.([]any); ok {
		for _, r := range list {
			if m, ok := r.(map[string]any); ok && asString(m["id"]) == target {
				return m, nil
			}
		}
	}
	return map[string]any{"error": fmt.Sprintf("Repository %s not found", target)}, nil
}

// SearchEntryPoints searches entry points by regex on name and description.
func (c *CodeParserClient) SearchEntryPoints(ctx context.Context, repoID, search string, limit int) (any, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", "0")
	return c.getJSON(ctx, c.repoPrefix(repoID)+"/entry-points", params, nil)
}

// GetFlows returns execution flow documentation for the given entry points.
func (c *CodeParserClient) GetFlows(ctx context.Context, repoID string, entryPointIDs []string) (any, error) {
	return c.postJSON(ctx, c.repoPrefix(repoID)+"/flows", map[string]any{"entry_point_ids": entryPointIDs}, nil)
}

// SearchFiles searches files by regex on relative path.
func (c *CodeParserClient) SearchFiles(ctx context.Context, repoID, search string, limit int) (any, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", "0")
	return c.getJSON(ctx, c.repoPrefix(repoID)+"/files", params, nil)
}

// GetFileDetail returns full file details including source content.
func (c *CodeParserClient) GetFileDetail(ctx context.Context, repoID, fileID string) (any, error) {
	return c.getJSON(ctx, c.repoPrefix(repoID)+"/files/"+fileID, nil, nil)
}
