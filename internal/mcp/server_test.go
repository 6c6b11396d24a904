package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/forecast"
	"github.com/marcus/opsdesk/internal/opportunity"
	"github.com/marcus/opsdesk/internal/ranking"
	"github.com/marcus/opsdesk/internal/routing"
	"github.com/marcus/opsdesk/internal/workforce"
)

// --- Fake implementation ---

type fakeService struct {
	user string
	err  error

	routeReq  engine.RouteRequest
	riskReq   engine.RiskRequest
	oppReq    engine.OpportunityRequest
	recalcFor string
}

func (f *fakeService) NextActions(_ context.Context, userID string) ([]ranking.Action, error) {
	f.user = userID
	if f.err != nil {
		return nil, f.err
	}
	due := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	return []ranking.Action{
		{TaskID: "t1", Title: "Replace valve", DueDate: &due, Value: 275, PriorityScore: 200, Urgency: 50, Revenue: 25, DurationMinutes: 90},
		{TaskID: "t2", Title: "Call back", Value: 40, PriorityScore: 40, DurationMinutes: 30},
	}, nil
}

func (f *fakeService) OptimizeRoute(_ context.Context, userID string, req engine.RouteRequest) (engine.RoutePlan, error) {
	f.user, f.routeReq = userID, req
	if f.err != nil {
		return engine.RoutePlan{}, f.err
	}
	return engine.RoutePlan{
		Day:    req.Day.Format(engine.DayLayout),
		Result: routing.Result{Order: []string{"a", "b"}, TravelMinutes: 12.5},
	}, nil
}

func (f *fakeService) ForecastDelayRisk(_ context.Context, userID string, req engine.RiskRequest) ([]forecast.DayRisk, error) {
	f.user, f.riskReq = userID, req
	if f.err != nil {
		return nil, f.err
	}
	return []forecast.DayRisk{{Day: "2026-03-11", ExpectedMinutes: 600, CapacityMinutes: 480, Probability: 0.625, Reason: "600 min expected vs 480 min capacity (25% over)"}}, nil
}

func (f *fakeService) SuggestRedistribution(_ context.Context, userID string, req engine.RedistributionRequest) (engine.RedistributionPlan, error) {
	f.user = userID
	if f.err != nil {
		return engine.RedistributionPlan{}, f.err
	}
	return engine.RedistributionPlan{
		From:        "2026-03-10",
		To:          "2026-03-16",
		Loads:       []workforce.Load{{Assignee: "", Minutes: 700, Capacity: 480}, {Assignee: "ben", Capacity: 480}},
		Suggestions: []workforce.Suggestion{{TaskID: "t9", Title: "Inspect", From: "", To: "ben", BenefitMinutes: 300}},
	}, nil
}

func (f *fakeService) DetectOpportunity(_ context.Context, userID string, req engine.OpportunityRequest) (opportunity.Report, error) {
	f.user, f.oppReq = userID, req
	if f.err != nil {
		return opportunity.Report{}, f.err
	}
	return opportunity.Report{FreeMinutes: 900, JobsThatFit: 10, PotentialRevenue: 2000, DaysAnalyzed: 2, AvgJobMinutes: 90, RevenuePerJob: 200}, nil
}

func (f *fakeService) RecalculateAllPriorities(_ context.Context, userID string) ([]engine.ScoreResult, error) {
	f.recalcFor = userID
	if f.err != nil {
		return nil, f.err
	}
	return make([]engine.ScoreResult, 3), nil
}

// --- Test helpers ---

var fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestServer(svc Service) *Server {
	s := NewServer(svc, "tech-1", time.UTC, "test")
	s.now = func() time.Time { return fixedNow }
	return s
}

// callTool connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}
	return result
}

func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	if result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	if err := json.Unmarshal([]byte(extractText(result)), out); err != nil {
		t.Fatalf("unmarshalling text content: %v", err)
	}
}

func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestListTools(t *testing.T) {
	srv := newTestServer(&fakeService{})
	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	t1, t2 := gomcp.NewInMemoryTransports()
	go func() { _ = srv.MCPServer().Run(ctx, t1) }()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"next_actions", "optimize_route", "delay_risk", "redistribution", "money_opportunity", "recalculate_priorities"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestNextActions(t *testing.T) {
	svc := &fakeService{}
	result := callTool(t, newTestServer(svc), "next_actions", map[string]any{})

	var out nextActionsOutput
	decode(t, result, &out)
	if out.Count != 2 || out.Actions[0].TaskID != "t1" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.Actions[0].Due != "2026-03-10T15:00:00Z" || out.Actions[1].Due != "" {
		t.Errorf("due dates = %q, %q", out.Actions[0].Due, out.Actions[1].Due)
	}
	if svc.user != "tech-1" {
		t.Errorf("called as %q, want tech-1", svc.user)
	}
}

func TestOptimizeRoute(t *testing.T) {
	svc := &fakeService{}
	result := callTool(t, newTestServer(svc), "optimize_route", map[string]any{
		"day":      "2026-03-12",
		"use_base": true,
		"base_lat": 48.85,
		"base_lon": 2.35,
	})

	var out optimizeRouteOutput
	decode(t, result, &out)
	if out.Day != "2026-03-12" || len(out.Order) != 2 || out.TravelMinutes != 12.5 {
		t.Errorf("unexpected output: %+v", out)
	}
	if svc.routeReq.Base == nil || svc.routeReq.Base.Lat != 48.85 {
		t.Errorf("base not forwarded: %+v", svc.routeReq)
	}
}

func TestOptimizeRoute_DefaultsToToday(t *testing.T) {
	svc := &fakeService{}
	result := callTool(t, newTestServer(svc), "optimize_route", map[string]any{})

	var out optimizeRouteOutput
	decode(t, result, &out)
	if out.Day != "2026-03-10" {
		t.Errorf("Day = %q, want today", out.Day)
	}
	if svc.routeReq.Base != nil {
		t.Error("base set without use_base")
	}
}

func TestDelayRisk(t *testing.T) {
	svc := &fakeService{}
	result := callTool(t, newTestServer(svc), "delay_risk", map[string]any{"from": "2026-03-10", "capacity_minutes": 300})

	var out delayRiskOutput
	decode(t, result, &out)
	if out.Count != 1 || out.Days[0].Probability != 0.625 {
		t.Errorf("unexpected output: %+v", out)
	}
	if got := svc.riskReq.To.Format(engine.DayLayout); got != "2026-03-16" {
		t.Errorf("default to = %s, want 2026-03-16", got)
	}
	if svc.riskReq.CapacityMinutes != 300 {
		t.Errorf("capacity = %d, want 300", svc.riskReq.CapacityMinutes)
	}
}

func TestRedistribution_LabelsUnassigned(t *testing.T) {
	result := callTool(t, newTestServer(&fakeService{}), "redistribution", map[string]any{})

	var out redistributionOutput
	decode(t, result, &out)
	if out.Count != 1 || out.Suggestions[0].From != workforce.Unassigned || out.Suggestions[0].To != "ben" {
		t.Errorf("unexpected output: %+v", out)
	}
	if out.Loads[0].Assignee != workforce.Unassigned {
		t.Errorf("load label = %q", out.Loads[0].Assignee)
	}
}

func TestMoneyOpportunity(t *testing.T) {
	svc := &fakeService{}
	result := callTool(t, newTestServer(svc), "money_opportunity", map[string]any{
		"from":            "2026-03-10",
		"to":              "2026-03-11",
		"avg_job_minutes": 90,
		"revenue_per_job": 200,
	})

	var out opportunityOutput
	decode(t, result, &out)
	if out.FreeMinutes != 900 || out.JobsThatFit != 10 || out.PotentialRevenue != 2000 {
		t.Errorf("unexpected output: %+v", out)
	}
	if svc.oppReq.AvgJobMinutes != 90 || svc.oppReq.RevenuePerJob != 200 {
		t.Errorf("parameters not forwarded: %+v", svc.oppReq)
	}
}

func TestRecalculatePriorities(t *testing.T) {
	svc := &fakeService{}
	result := callTool(t, newTestServer(svc), "recalculate_priorities", map[string]any{})

	var out recalculateOutput
	decode(t, result, &out)
	if out.Updated != 3 || svc.recalcFor != "tech-1" {
		t.Errorf("unexpected output: %+v (user %q)", out, svc.recalcFor)
	}
}

func TestBadDate(t *testing.T) {
	svc := &fakeService{}
	result := callTool(t, newTestServer(svc), "delay_risk", map[string]any{"from": "next week"})
	if !result.IsError {
		t.Fatal("expected error result for malformed date")
	}
	if !strings.Contains(extractText(result), "from") {
		t.Errorf("error should name the field: %s", extractText(result))
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &engine.FieldError{Field: "to", Reason: "must not be before from"}, "must not be before from"},
		{"store failure", errors.New("disk I/O error"), "try again"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, newTestServer(&fakeService{err: tt.err}), "money_opportunity", map[string]any{})
			if !result.IsError {
				t.Fatal("expected error result")
			}
			text := extractText(result)
			if !strings.Contains(text, tt.want) {
				t.Errorf("error text %q missing %q", text, tt.want)
			}
			if strings.Contains(text, "disk I/O") {
				t.Errorf("store detail leaked: %s", text)
			}
		})
	}
}
