package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/eleven-am/warden/internal/domain"
	json "github.com/eleven-am/warden/internal/xjson"
)

var (
	quotedPattern  = regexp.MustCompile(`["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`)
	integerPattern = regexp.MustCompile(`-?\d+`)
)

// nextNode resolves the node after current given its output. It never fails
// the run: LLM-mediated routing is best-effort and degrades to declared
// fallbacks. An empty return ends traversal successfully.
func (o *Orchestrator) nextNode(ctx context.Context, wf *domain.Workflow, run *domain.Run, node *domain.Node, output map[string]interface{}) string {
	edges := wf.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return ""
	}

	if node.Type == domain.NodeTypeRouter {
		return o.evaluateRouter(ctx, run, node, edges, output)
	}

	var conditional []domain.Edge
	for _, edge := range edges {
		if edge.Condition != "" {
			conditional = append(conditional, edge)
		}
	}
	if len(conditional) > 0 {
		if idx := o.evaluateConditions(ctx, run, conditional, output); idx >= 0 {
			return conditional[idx].To
		}
	}

	return defaultEdge(edges).To
}

// evaluateRouter picks among the node's declared routes via the designated
// routing agent. Any failure degrades to the first declared route, or the
// first outgoing edge when no routes are declared.
func (o *Orchestrator) evaluateRouter(ctx context.Context, run *domain.Run, node *domain.Node, edges []domain.Edge, output map[string]interface{}) string {
	routes, err := parseRoutes(node)
	if err != nil || len(routes) == 0 {
		if err != nil {
			o.logger.Warn("malformed router config, using first edge",
				"run_id", run.ID,
				"node_id", node.ID,
				"error", err.Error())
		}
		return edges[0].To
	}

	fallback := routes[0].TargetNode

	if o.agents == nil {
		return fallback
	}

	prompt := buildRoutePrompt(routes, output, o.renderHistory(ctx, run))
	result, err := o.agents.RunStep(ctx, o.cfg.RoutingAgentID, domain.AgentContext{
		RunID:    run.ID,
		TenantID: run.TenantID,
		UserID:   run.UserID,
		AppID:    run.AppID,
	}, map[string]interface{}{"prompt": prompt})
	if err != nil {
		o.logger.Warn("routing agent failed, using first declared route",
			"run_id", run.ID,
			"node_id", node.ID,
			"error", err.Error())
		return fallback
	}

	o.budget.AddCost(run.ID, result.Usage.CostCents)
	o.budget.IncrementLLMCalls(run.ID)

	routeID := parseRouteReply(result.Text, routes)
	for _, route := range routes {
		if strings.EqualFold(route.ID, routeID) {
			return route.TargetNode
		}
	}
	return fallback
}

// evaluateConditions asks the condition agent to pick a 1-based option among
// conditional edges. It returns the zero-based index, or -1 for no match.
func (o *Orchestrator) evaluateConditions(ctx context.Context, run *domain.Run, conditional []domain.Edge, output map[string]interface{}) int {
	if o.agents == nil {
		return -1
	}

	prompt := buildConditionPrompt(conditional, output, o.renderHistory(ctx, run))
	result, err := o.agents.RunStep(ctx, o.cfg.ConditionAgentID, domain.AgentContext{
		RunID:    run.ID,
		TenantID: run.TenantID,
		UserID:   run.UserID,
		AppID:    run.AppID,
	}, map[string]interface{}{"prompt": prompt})
	if err != nil {
		o.logger.Warn("condition agent failed, falling through to default edge",
			"run_id", run.ID,
			"error", err.Error())
		return -1
	}

	o.budget.AddCost(run.ID, result.Usage.CostCents)
	o.budget.IncrementLLMCalls(run.ID)

	match := integerPattern.FindString(result.Text)
	if match == "" {
		return -1
	}
	choice, err := strconv.Atoi(match)
	if err != nil || choice < 1 || choice > len(conditional) {
		return -1
	}
	return choice - 1
}

// parseRouteReply extracts a route id from free-text agent output: exact
// case-insensitive match first, then the first quoted substring naming a
// route, then the first declared route. First match wins; this is a
// documented approximation, not a confidence protocol.
func parseRouteReply(reply string, routes []domain.Route) string {
	trimmed := strings.TrimSpace(reply)
	for _, route := range routes {
		if strings.EqualFold(trimmed, route.ID) {
			return route.ID
		}
	}

	for _, match := range quotedPattern.FindAllStringSubmatch(reply, -1) {
		candidate := strings.TrimSpace(match[1])
		for _, route := range routes {
			if strings.EqualFold(candidate, route.ID) {
				return route.ID
			}
		}
	}

	return routes[0].ID
}

func parseRoutes(node *domain.Node) ([]domain.Route, error) {
	raw, ok := node.Config["routes"]
	if !ok {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var routes []domain.Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, err
	}

	for _, route := range routes {
		if route.ID == "" || route.TargetNode == "" {
			return nil, domain.NewValidationError("routes", "route requires id and target_node")
		}
	}
	return routes, nil
}

func buildRoutePrompt(routes []domain.Route, output map[string]interface{}, history string) string {
	var sb strings.Builder

	sb.WriteString("Choose the next route for this workflow. Reply with the route id only.\n\nRoutes:\n")
	for _, route := range routes {
		fmt.Fprintf(&sb, "- %q", route.ID)
		if route.Condition != "" {
			fmt.Fprintf(&sb, " (when: %s)", route.Condition)
		}
		fmt.Fprintf(&sb, " -> %s\n", route.TargetNode)
	}

	writePromptContext(&sb, output, history)
	return sb.String()
}

func buildConditionPrompt(conditional []domain.Edge, output map[string]interface{}, history string) string {
	var sb strings.Builder

	sb.WriteString("Pick the option whose condition holds. Reply with the option number only, or 0 if none apply.\n\nOptions:\n")
	for i, edge := range conditional {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, edge.Condition)
	}

	writePromptContext(&sb, output, history)
	return sb.String()
}

func writePromptContext(sb *strings.Builder, output map[string]interface{}, history string) {
	if len(output) > 0 {
		if data, err := json.Marshal(output); err == nil {
			fmt.Fprintf(sb, "\nLast node output:\n%s\n", data)
		}
	}
	if history != "" {
		fmt.Fprintf(sb, "\n%s", history)
	}
}

// renderHistory builds the audit chain over the run's recent steps and
// events and renders it, keeping routing prompts grounded in verifiable
// history. Failures degrade to an empty context.
func (o *Orchestrator) renderHistory(ctx context.Context, run *domain.Run) string {
	steps, err := o.steps.ListByRun(ctx, run.ID)
	if err != nil {
		return ""
	}
	events, err := o.events.ListByRun(ctx, run.ID)
	if err != nil {
		return ""
	}

	if len(steps) > o.cfg.HistoryDepth {
		steps = steps[len(steps)-o.cfg.HistoryDepth:]
	}
	if len(events) > o.cfg.HistoryDepth {
		events = events[len(events)-o.cfg.HistoryDepth:]
	}

	return o.chain.Render(o.chain.Build(steps, events, run))
}

func defaultEdge(edges []domain.Edge) domain.Edge {
	for _, edge := range edges {
		if edge.Condition == "" {
			return edge
		}
	}
	return edges[0]
}
