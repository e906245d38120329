// ABOUTME: Tool registry mapping tool names to diagnostic service calls
// ABOUTME: Normalizes every invocation to (text, error flag) with timeout and shaping

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fixai/fixai-gateway/internal/model"
)

const (
	serviceCodeParser      = "Code Parser"
	serviceMetricsExplorer = "Metrics Explorer"
	serviceLogsExplorer    = "Logs Explorer"
)

// Result is the normalized outcome of one tool invocation. IsError marks
// results the model should read as diagnostics rather than data; the turn
// continues either way.
type Result struct {
	Text    string
	IsError bool
}

// Config wires a Registry for one organization. Nil clients mean the service
// is not configured; its tools then return SERVICE_NOT_CONFIGURED errors.
type Config struct {
	CodeParser      *CodeParserClient
	MetricsExplorer *MetricsClient
	LogsExplorer    *LogsClient

	// CallTimeout bounds each provider call. Zero means 60s.
	CallTimeout time.Duration

	// FlowResultMaxChars caps the two large code tools (flows, file content).
	// Zero means the shared soft cap.
	FlowResultMaxChars int
}

// Registry holds the tool catalog for one turn and dispatches invocations.
type Registry struct {
	code    *CodeParserClient
	metrics *MetricsClient
	logs    *LogsClient

	callTimeout  time.Duration
	flowMaxChars int
	logger       *slog.Logger
}

func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.FlowResultMaxChars == 0 {
		cfg.FlowResultMaxChars = resultSoftCap
	}
	return &Registry{
		code:         cfg.CodeParser,
		metrics:      cfg.MetricsExplorer,
		logs:         cfg.LogsExplorer,
		callTimeout:  cfg.CallTimeout,
		flowMaxChars: cfg.FlowResultMaxChars,
		logger:       logger.With("component", "tools"),
	}
}

// Invoke runs the named tool. Unknown tools and provider failures come back as
// error results, never as Go errors; the caller feeds Text to the model either
// way.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) Result {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	handler, ok := r.handlers()[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return Result{Text: fmt.Sprintf("Unknown tool: %s", name), IsError: true}
	}

	r.logger.Info("tool call", "tool", name, "arg_keys", argKeys(args))
	return handler(ctx, args)
}

type handlerFunc func(ctx context.Context, args map[string]any) Result

func (r *Registry) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"code_search_repositories": r.codeSearchRepositories,
		"code_get_repo_info":       r.codeGetRepoInfo,
		"code_search_entry_points": r.codeSearchEntryPoints,
		"code_get_flows":           r.codeGetFlows,
		"code_search_files":        r.codeSearchFiles,
		"code_get_file":            r.codeGetFile,

		"metrics_get_overview":        r.metricsGetOverview,
		"metrics_search_dashboards":   r.metricsSearchDashboards,
		"metrics_explore_dashboard":   r.metricsExploreDashboard,
		"metrics_get_variable_values": r.metricsGetVariableValues,
		"metrics_query":               r.metricsQuery,

		"logs_get_overview":   r.logsGetOverview,
		"logs_search_sources": r.logsSearchSources,
		"logs_search":         r.logsSearch,
	}
}

func argKeys(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	return keys
}

func (r *Registry) fail(err error, service string) Result {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return Result{
			Text: errorPayload("API_ERROR", apiErr.Error(), service,
				map[string]any{"status_code": apiErr.StatusCode}),
			IsError: true,
		}
	}
	return Result{Text: errorPayload("UNKNOWN_ERROR", err.Error(), service, nil), IsError: true}
}

func notConfigured(service string) Result {
	return Result{
		Text: errorPayload("SERVICE_NOT_CONFIGURED",
			fmt.Sprintf("%s is not configured for this organization", service), service, nil),
		IsError: true,
	}
}

// --- Code Parser tools ---

func (r *Registry) codeSearchRepositories(ctx context.Context, args map[string]any) Result {
	if r.code == nil {
		return notConfigured(serviceCodeParser)
	}
	repos, err := r.code.ListRepositories(ctx, stringArg(args, "search"), intArg(args, "limit", 50))
	if err != nil {
		return r.fail(err, serviceCodeParser)
	}
	if list := asList(repos); list != nil {
		return Result{Text: safeJSON(map[string]any{
			"total_count": len(list),
			"repositories": compactList(list,
				[]string{"id", "name", "description", "status", "languages", "total_files"}, 30),
		}, resultSoftCap)}
	}
	return Result{Text: safeJSON(repos, resultSoftCap)}
}

func (r *Registry) codeGetRepoInfo(ctx context.Context, args map[string]any) Result {
	if r.code == nil {
		return notConfigured(serviceCodeParser)
	}
	repo, err := r.code.GetRepository(ctx, stringArg(args, "repo_id"))
	if err != nil {
		return r.fail(err, serviceCodeParser)
	}
	return Result{Text: safeJSON(repo, resultSoftCap)}
}

func (r *Registry) codeSearchEntryPoints(ctx context.Context, args map[string]any) Result {
	if r.code == nil {
		return notConfigured(serviceCodeParser)
	}
	results, err := r.code.SearchEntryPoints(ctx, stringArg(args, "repo_id"), stringArg(args, "search"), 100)
	if err != nil {
		return r.fail(err, serviceCodeParser)
	}

	list := asList(results)
	if list == nil {
		return Result{Text: safeJSON(results, resultSoftCap)}
	}

	if epType := stringArg(args, "entry_point_type"); epType != "" {
		filtered := make([]any, 0, len(list))
		for _, ep := range list {
			if m := asMap(ep); m != nil && asString(m["entry_point_type"]) == epType {
				filtered = append(filtered, ep)
			}
		}
		list = filtered
	}

	return Result{Text: safeJSON(map[string]any{
		"total_count": len(list),
		"entry_points": compactList(list,
			[]string{"id", "name", "description", "entry_point_type", "framework", "metadata", "ai_confidence"}, 30),
	}, resultSoftCap)}
}

func (r *Registry) codeGetFlows(ctx context.Context, args map[string]any) Result {
	if r.code == nil {
		return notConfigured(serviceCodeParser)
	}
	ids := stringListArg(args, "entry_point_ids")
	if len(ids) > 5 {
		ids = ids[:5]
	}
	result, err := r.code.GetFlows(ctx, stringArg(args, "repo_id"), ids)
	if err != nil {
		return r.fail(err, serviceCodeParser)
	}
	// Flows are large but highly valuable, so they get the bigger cap
	return Result{Text: safeJSON(result, r.flowMaxChars)}
}

func (r *Registry) codeSearchFiles(ctx context.Context, args map[string]any) Result {
	if r.code == nil {
		return notConfigured(serviceCodeParser)
	}
	results, err := r.code.SearchFiles(ctx, stringArg(args, "repo_id"), stringArg(args, "search"), 50)
	if err != nil {
		return r.fail(err, serviceCodeParser)
	}
	if list := asList(results); list != nil {
		return Result{Text: safeJSON(map[string]any{
			"total_count": len(list),
			"files":       compactList(list, []string{"id", "relative_path", "language"}, 30),
		}, resultSoftCap)}
	}
	return Result{Text: safeJSON(results, resultSoftCap)}
}

func (r *Registry) codeGetFile(ctx context.Context, args map[string]any) Result {
	if r.code == nil {
		return notConfigured(serviceCodeParser)
	}
	result, err := r.code.GetFileDetail(ctx, stringArg(args, "repo_id"), stringArg(args, "file_id"))
	if err != nil {
		return r.fail(err, serviceCodeParser)
	}
	return Result{Text: safeJSON(result, r.flowMaxChars)}
}

// --- Metrics Explorer tools ---

func (r *Registry) metricsGetOverview(ctx context.Context, args map[string]any) Result {
	if r.metrics == nil {
		return notConfigured(serviceMetricsExplorer)
	}
	raw, err := r.metrics.GetOrganization(ctx)
	if err != nil {
		return r.fail(err, serviceMetricsExplorer)
	}
	org := asMap(raw)

	providers := []map[string]any{}
	for _, p := range asList(org["providers"]) {
		pm := asMap(p)
		providers = append(providers, map[string]any{
			"type":   pm["provider_type"],
			"name":   pm["name"],
			"active": pm["is_active"],
		})
	}

	result := map[string]any{
		"org_name":           org["name"],
		"providers":          providers,
		"used_dashboard_ids": org["used_dashboards"],
	}

	if len(asList(org["used_dashboards"])) > 0 {
		used, err := r.metrics.GetUsedDashboards(ctx)
		if err != nil {
			result["used_dashboards_error"] = "Could not fetch used dashboard details"
		} else {
			dashboards := []map[string]any{}
			for _, d := range asList(asMap(used)["used_dashboards"]) {
				dm := asMap(d)
				dashboards = append(dashboards, map[string]any{
					"db_id":                 dm["id"],
					"provider_dashboard_id": dm["dashboard_id"],
					"title":                 dm["title"],
					"provider_type":         dm["provider_type"],
				})
			}
			result["used_dashboards"] = dashboards
		}
	}

	return Result{Text: safeJSON(result, resultSoftCap)}
}

func (r *Registry) metricsSearchDashboards(ctx context.Context, args map[string]any) Result {
	if r.metrics == nil {
		return notConfigured(serviceMetricsExplorer)
	}
	raw, err := r.metrics.SearchDashboards(ctx, stringArg(args, "search"))
	if err != nil {
		return r.fail(err, serviceMetricsExplorer)
	}
	result := asMap(raw)
	dashboards := asList(result["dashboards"])

	total := asInt(result["total_count"], len(dashboards))
	return Result{Text: safeJSON(map[string]any{
		"total_count": total,
		"dashboards":  compactList(dashboards, []string{"id", "dashboard_id", "title", "provider_type"}, 20),
	}, resultSoftCap)}
}

func (r *Registry) metricsExploreDashboard(ctx context.Context, args map[string]any) Result {
	if r.metrics == nil {
		return notConfigured(serviceMetricsExplorer)
	}
	dashboardDBID := stringArg(args, "dashboard_db_id")

	raw, err := r.metrics.SearchMetrics(ctx, dashboardDBID, stringArg(args, "metric_search"))
	if err != nil {
		return r.fail(err, serviceMetricsExplorer)
	}
	metricsResult := asMap(raw)
	metrics := asList(metricsResult["metrics"])

	// Template variables are best-effort; some providers have none
	varSummary := []map[string]any{}
	if varsRaw, err := r.metrics.ListTemplateVariables(ctx, dashboardDBID); err == nil {
		varList := asList(varsRaw)
		if wrapper := asMap(varsRaw); wrapper != nil {
			if tv := asList(wrapper["template_variables"]); tv != nil {
				varList = tv
			} else if d := asList(wrapper["data"]); d != nil {
				varList = d
			}
		}
		for _, v := range varList {
			vm := asMap(v)
			if vm == nil {
				continue
			}
			name := vm["variable_name"]
			if name == nil {
				name = vm["name"]
			}
			totalValues := len(asList(vm["values"]))
			entry := map[string]any{
				"name":          name,
				"tag_key":       vm["tag_key"],
				"default_value": vm["default_value"],
				"total_values":  totalValues,
			}
			if totalValues == 0 {
				entry["total_values"] = vm["total_count"]
			}
			varSummary = append(varSummary, entry)
		}
	}

	// Surface the raw provider queries so the model can see real metric names
	enriched := []map[string]any{}
	for i, m := range metrics {
		if i >= 25 {
			break
		}
		mm := asMap(m)
		if mm == nil {
			continue
		}
		entry := map[string]any{
			"id":           mm["id"],
			"display_name": mm["name"],
			"description":  mm["description"],
		}
		var rawQueries []string
		for _, req := range asList(asMap(mm["details"])["requests"]) {
			for _, q := range asList(asMap(req)["queries"]) {
				if qs := asString(asMap(q)["query"]); qs != "" {
					rawQueries = append(rawQueries, qs)
				}
			}
		}
		if len(rawQueries) > 0 {
			show := rawQueries
			if len(show) > 3 {
				show = show[:3]
			}
			entry["actual_queries"] = show
			// query format: agg:metric_name{filters}
			first := rawQueries[0]
			if colon := strings.Index(first, ":"); colon >= 0 {
				if brace := strings.Index(first[colon:], "{"); brace > 0 {
					entry["metric_name"] = first[colon+1 : colon+brace]
				}
			}
		}
		enriched = append(enriched, entry)
	}

	return Result{Text: safeJSON(map[string]any{
		"total_metrics":      asInt(metricsResult["total_count"], len(metrics)),
		"metrics":            enriched,
		"template_variables": varSummary,
	}, resultSoftCap)}
}

func (r *Registry) metricsGetVariableValues(ctx context.Context, args map[string]any) Result {
	if r.metrics == nil {
		return notConfigured(serviceMetricsExplorer)
	}
	raw, err := r.metrics.GetVariableValues(ctx,
		stringArg(args, "dashboard_db_id"),
		stringArg(args, "variable_name"),
		stringArg(args, "search"))
	if err != nil {
		return r.fail(err, serviceMetricsExplorer)
	}
	result := asMap(raw)
	values := asList(result["values"])

	out := map[string]any{
		"variable_name":  result["variable_name"],
		"tag_key":        result["tag_key"],
		"default_value":  result["default_value"],
		"total_count":    result["total_count"],
		"returned_count": asInt(result["returned_count"], len(values)),
	}
	if len(values) > 50 {
		out["values"] = values[:50]
		out["_note"] = fmt.Sprintf("Showing first 50 of %d values", asInt(result["total_count"], len(values)))
	} else {
		out["values"] = values
	}
	return Result{Text: safeJSON(out, resultSoftCap)}
}

func (r *Registry) metricsQuery(ctx context.Context, args map[string]any) Result {
	if r.metrics == nil {
		return notConfigured(serviceMetricsExplorer)
	}

	query := map[string]any{
		"metric_name": stringArg(args, "metric_name"),
		"aggregation": stringArg(args, "aggregation"),
	}
	if query["aggregation"] == "" {
		query["aggregation"] = "avg"
	}
	if filters := asMap(args["filters"]); len(filters) > 0 {
		query["filters"] = filters
	}
	if groupBy := stringListArg(args, "group_by"); len(groupBy) > 0 {
		query["group_by"] = groupBy
	}

	timeRange, errRes := resolveTimeRange(args)
	if errRes != nil {
		return *errRes
	}

	raw, err := r.metrics.QueryMetrics(ctx, stringArg(args, "dashboard_provider_id"), []map[string]any{query}, timeRange)
	if err != nil {
		return r.fail(err, serviceMetricsExplorer)
	}
	result := asMap(raw)

	output := map[string]any{
		"dashboard_id":      result["dashboard_id"],
		"provider":          result["provider"],
		"execution_time_ms": result["execution_time_ms"],
		"total_series":      result["total_series"],
		"total_datapoints":  result["total_datapoints"],
	}

	for _, res := range asList(result["results"]) {
		rm := asMap(res)
		output["expression"] = rm["expression"]
		output["series"] = summarizeSeries(asList(rm["series"]))
	}

	return Result{Text: safeJSON(output, resultSoftCap)}
}

// resolveTimeRange builds the provider time_range from either absolute ISO
// start/end times or a relative window like "1h".
func resolveTimeRange(args map[string]any) (map[string]any, *Result) {
	startRaw := stringArg(args, "start_time")
	endRaw := stringArg(args, "end_time")
	if startRaw != "" && endRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			res := Result{Text: errorPayload("UNKNOWN_ERROR",
				fmt.Sprintf("invalid start_time %q, expected ISO 8601", startRaw), serviceMetricsExplorer, nil), IsError: true}
			return nil, &res
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			res := Result{Text: errorPayload("UNKNOWN_ERROR",
				fmt.Sprintf("invalid end_time %q, expected ISO 8601", endRaw), serviceMetricsExplorer, nil), IsError: true}
			return nil, &res
		}
		return map[string]any{"start": start.Unix(), "end": end.Unix()}, nil
	}

	relative := stringArg(args, "time_range")
	if relative == "" {
		relative = "1h"
	}
	return map[string]any{"relative": relative}, nil
}

// summarizeSeries compacts raw time series into summary stats plus the last
// few datapoints so trends stay visible without flooding the context.
func summarizeSeries(series []any) []map[string]any {
	summaries := make([]map[string]any, 0, len(series))
	for _, s := range series {
		sm := asMap(s)
		if sm == nil {
			continue
		}
		datapoints := asList(sm["datapoints"])
		summary := map[string]any{
			"scope":           sm["scope"],
			"tags":            sm["tags"],
			"unit":            sm["unit"],
			"datapoint_count": len(datapoints),
		}

		var values []float64
		for _, dp := range datapoints {
			if v, ok := asFloat(asMap(dp)["value"]); ok {
				values = append(values, v)
			}
		}

		if len(values) == 0 {
			summary["note"] = "No non-null datapoints in this series"
			summaries = append(summaries, summary)
			continue
		}

		sum, min, max := 0.0, values[0], values[0]
		for _, v := range values {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		summary["avg"] = round4(sum / float64(len(values)))
		summary["min"] = round4(min)
		summary["max"] = round4(max)
		summary["latest"] = round4(values[len(values)-1])

		recent := datapoints
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		trend := make([]map[string]any, 0, len(recent))
		for _, dp := range recent {
			dpm := asMap(dp)
			point := map[string]any{"ts": dpm["timestamp"]}
			if v, ok := asFloat(dpm["value"]); ok {
				point["val"] = round4(v)
			} else {
				point["val"] = nil
			}
			trend = append(trend, point)
		}
		summary["recent_datapoints"] = trend
		summaries = append(summaries, summary)
	}
	return summaries
}

// --- Logs Explorer tools ---

func (r *Registry) logsGetOverview(ctx context.Context, args map[string]any) Result {
	if r.logs == nil {
		return notConfigured(serviceLogsExplorer)
	}
	raw, err := r.logs.GetOrganization(ctx)
	if err != nil {
		return r.fail(err, serviceLogsExplorer)
	}
	org := asMap(raw)
	return Result{Text: safeJSON(map[string]any{
		"org_name":            org["name"],
		"used_indexes":        org["used_indexes"],
		"index_count":         org["index_count"],
		"source_count":        org["source_count"],
		"application_count":   org["application_count"],
		"provider_configured": org["provider_configured"],
	}, resultSoftCap)}
}

func (r *Registry) logsSearchSources(ctx context.Context, args map[string]any) Result {
	if r.logs == nil {
		return notConfigured(serviceLogsExplorer)
	}
	raw, err := r.logs.SearchSources(ctx, stringArg(args, "search"), stringArg(args, "repository_id"))
	if err != nil {
		return r.fail(err, serviceLogsExplorer)
	}

	result := asMap(raw)
	if result == nil {
		return Result{Text: safeJSON(raw, resultSoftCap)}
	}
	matches := asList(result["matches"])
	if matches == nil {
		matches = asList(result["sources"])
	}
	if matches == nil {
		matches = asList(result["data"])
	}

	return Result{Text: safeJSON(map[string]any{
		"total_matches": len(matches),
		"matches": compactList(matches,
			[]string{"name", "repository_name", "repository_id", "total_count", "last_event_at"}, 30),
	}, resultSoftCap)}
}

const maxLogWindowMinutes = 10080 // 7 days

func (r *Registry) logsSearch(ctx context.Context, args map[string]any) Result {
	if r.logs == nil {
		return notConfigured(serviceLogsExplorer)
	}

	index := stringArg(args, "index")
	source := stringArg(args, "source")
	queryTerms := stringListArg(args, "query_terms")

	maxResults := intArg(args, "max_results", 50)
	if maxResults > 200 {
		maxResults = 200
	}

	fromTime, toTime := logWindow(args)

	raw, err := r.logs.SearchLogs(ctx, index, fromTime, toTime, source, queryTerms, maxResults)
	if err != nil {
		return r.fail(err, serviceLogsExplorer)
	}

	result := asMap(raw)
	data := asList(result["data"])
	queryEcho := map[string]any{
		"index": index, "source": source, "terms": queryTerms,
		"from_time": fromTime, "to_time": toTime,
	}

	if len(data) == 0 {
		return Result{Text: safeJSON(map[string]any{
			"total_results": 0,
			"query":         queryEcho,
			"note":          "No logs found matching the query. Try different search terms, broader time range, or check the source name.",
		}, resultSoftCap)}
	}

	// Cap individual field lengths; a single giant stack trace should not
	// dominate the result
	entries := make([]any, 0, maxResults)
	for i, entry := range data {
		if i >= maxResults {
			break
		}
		m := asMap(entry)
		if m == nil {
			s := asString(entry)
			if len(s) > 500 {
				s = s[:500] + "..."
			}
			entries = append(entries, s)
			continue
		}
		trimmed := map[string]any{}
		for k, v := range m {
			if s, ok := v.(string); ok && len(s) > 500 {
				trimmed[k] = s[:500] + "..."
			} else {
				trimmed[k] = v
			}
		}
		entries = append(entries, trimmed)
	}

	return Result{Text: safeJSON(map[string]any{
		"total_results": len(data),
		"showing":       len(entries),
		"query":         queryEcho,
		"logs":          entries,
	}, resultSoftCap)}
}

// logWindow computes the search window: absolute ISO start/end when provided,
// otherwise a relative lookback in minutes from now.
func logWindow(args map[string]any) (fromTime, toTime string) {
	startRaw := stringArg(args, "start_time")
	endRaw := stringArg(args, "end_time")
	if startRaw != "" && endRaw != "" {
		if _, err := time.Parse(time.RFC3339, startRaw); err == nil {
			if _, err := time.Parse(time.RFC3339, endRaw); err == nil {
				return startRaw, endRaw
			}
		}
	}

	minutes := intArg(args, "time_range_minutes", 60)
	if minutes > maxLogWindowMinutes {
		minutes = maxLogWindowMinutes
	}
	now := time.Now().UTC()
	return now.Add(-time.Duration(minutes) * time.Minute).Format(time.RFC3339),
		now.Format(time.RFC3339)
}

// --- Catalog ---

// Definitions returns the tool catalog offered to the model. The catalog is
// static; availability of an unconfigured service surfaces at invocation time
// so the model gets a structured explanation instead of a missing tool.
func (r *Registry) Definitions() []model.ToolDefinition {
	return toolCatalog
}

func objSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

var repoIDProp = strProp("Repository ID from code_search_repositories. Omit to use the organization's default repository.")

var toolCatalog = []model.ToolDefinition{
	{
		Name:        "code_search_repositories",
		Description: "List the organization's code repositories, optionally filtered by a regex search on name. Use this first to find the right repo_id for the other code tools.",
		InputSchema: objSchema(nil, map[string]any{
			"search": strProp("Optional regex pattern matching repository names."),
			"limit":  intProp("Max repositories to return (default 50)."),
		}),
	},
	{
		Name:        "code_get_repo_info",
		Description: "Get repository metadata: name, description, status, languages, total_files.",
		InputSchema: objSchema(nil, map[string]any{
			"repo_id": repoIDProp,
		}),
	},
	{
		Name:        "code_search_entry_points",
		Description: "Search entry points (HTTP endpoints, event handlers, schedulers) by regex on name and description. Example patterns: 'fraud', 'payment|transaction', 'POST.*risk'.",
		InputSchema: objSchema(nil, map[string]any{
			"search":           strProp("Regex pattern matching entry point name or description."),
			"entry_point_type": strProp("Filter by type: 'HTTP', 'EVENT', or 'SCHEDULER'. Omit for all."),
			"repo_id":          repoIDProp,
		}),
	},
	{
		Name:        "code_get_flows",
		Description: "Get step-by-step execution flow documentation for entry points, including code snippets, file paths, and log lines. Max 5 entry points per call.",
		InputSchema: objSchema([]string{"entry_point_ids"}, map[string]any{
			"entry_point_ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Entry point IDs from code_search_entry_points. Max 5.",
			},
			"repo_id": repoIDProp,
		}),
	},
	{
		Name:        "code_search_files",
		Description: "Search source files by regex on relative path. Examples: 'controller|handler', 'FraudService', '\\.py$'.",
		InputSchema: objSchema([]string{"search"}, map[string]any{
			"search":  strProp("Regex pattern matching the file's relative path."),
			"repo_id": repoIDProp,
		}),
	},
	{
		Name:        "code_get_file",
		Description: "Read the full source code of one file. Use after code_search_files or after flow documentation names a file.",
		InputSchema: objSchema([]string{"file_id"}, map[string]any{
			"file_id": strProp("File ID from code_search_files or flow file references."),
			"repo_id": repoIDProp,
		}),
	},

	{
		Name:        "metrics_get_overview",
		Description: "Get the metrics organization overview: providers and the list of important (used) dashboards with both their db_id and provider_dashboard_id. ALWAYS call this first for metrics investigation.",
		InputSchema: objSchema(nil, map[string]any{}),
	},
	{
		Name:        "metrics_search_dashboards",
		Description: "Search dashboards by keyword. Space-separated terms are OR'd; * wildcards supported. Examples: 'DynamoDB', 'fraud*', 'payment latency'.",
		InputSchema: objSchema([]string{"search"}, map[string]any{
			"search": strProp("Wildcard search pattern for dashboard titles."),
		}),
	},
	{
		Name:        "metrics_explore_dashboard",
		Description: "List a dashboard's metrics (with real provider metric names extracted from queries) and its template variables. Use the db_id (database UUID), NOT the provider dashboard ID.",
		InputSchema: objSchema([]string{"dashboard_db_id"}, map[string]any{
			"dashboard_db_id": strProp("Database UUID of the dashboard, from metrics_get_overview or metrics_search_dashboards."),
			"metric_search":   strProp("Optional wildcard to filter metrics, e.g. 'error*' or 'latency'."),
		}),
	},
	{
		Name:        "metrics_get_variable_values",
		Description: "Get available values for a dashboard template variable. Use this to discover valid filter values before querying.",
		InputSchema: objSchema([]string{"dashboard_db_id", "variable_name"}, map[string]any{
			"dashboard_db_id": strProp("Database UUID of the dashboard."),
			"variable_name":   strProp("Variable name, e.g. 'tablename', 'service', 'environment'."),
			"search":          strProp("Optional search to narrow high-cardinality variables."),
		}),
	},
	{
		Name:        "metrics_query",
		Description: "Execute a metric query against a dashboard. Use the provider_dashboard_id (e.g. '4k2-qvg-h38'), NOT the database UUID. Supports a relative time_range or absolute start_time/end_time ISO 8601 bounds.",
		InputSchema: objSchema([]string{"dashboard_provider_id", "metric_name"}, map[string]any{
			"dashboard_provider_id": strProp("Provider dashboard ID from overview or search results."),
			"metric_name":           strProp("Full metric name, e.g. 'aws.dynamodb.consumed_read_capacity_units'."),
			"aggregation":           strProp("avg, sum, min, max, count, or last. Default avg."),
			"filters": map[string]any{
				"type":        "object",
				"description": "Tag filters, e.g. {\"service\": \"ccfraud\", \"environment\": \"prod\"}.",
			},
			"group_by": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Tag keys to group results by, e.g. [\"service\"].",
			},
			"time_range": strProp("Relative range: '15m', '1h', '4h', '24h', '7d'. Default '1h'."),
			"start_time": strProp("Absolute ISO 8601 start, e.g. '2026-02-10T00:00:00Z'. Use with end_time for calendar ranges."),
			"end_time":   strProp("Absolute ISO 8601 end."),
		}),
	},

	{
		Name:        "logs_get_overview",
		Description: "Get the logs organization overview: used (important) indexes and index/source/application counts. ALWAYS call this first for logs investigation.",
		InputSchema: objSchema(nil, map[string]any{}),
	},
	{
		Name:        "logs_search_sources",
		Description: "Search log sources (services) by keyword. Space-separated terms are OR'd; * wildcards supported. Examples: 'ccfraud', 'payment*fraud'.",
		InputSchema: objSchema([]string{"search"}, map[string]any{
			"search":        strProp("Search pattern for source names."),
			"repository_id": strProp("Optional index/repository ID to scope the search."),
		}),
	},
	{
		Name:        "logs_search",
		Description: "Search application logs for errors, exceptions, and patterns in one index. Supports a relative lookback in minutes or absolute start_time/end_time ISO 8601 bounds.",
		InputSchema: objSchema([]string{"index"}, map[string]any{
			"index":  strProp("Log index name, e.g. 'prod_g2'. Use logs_get_overview to find used_indexes."),
			"source": strProp("Service/source name filter, auto-wrapped with wildcards. Optional but recommended."),
			"query_terms": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Search terms, e.g. [\"ERROR\", \"exception\", \"timeout\"]. Each is quoted.",
			},
			"time_range_minutes": intProp("Minutes back from now to search (default 60, max 10080 = 7 days)."),
			"start_time":         strProp("Absolute ISO 8601 start. Use with end_time for calendar ranges."),
			"end_time":           strProp("Absolute ISO 8601 end."),
			"max_results":        intProp("Max log entries (default 50, max 200)."),
		}),
	},
}
