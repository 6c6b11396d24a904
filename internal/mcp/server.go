// Package mcp exposes the scheduling engine as MCP (Model Context Protocol)
// tools for one configured user.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/forecast"
	"github.com/marcus/opsdesk/internal/geo"
	"github.com/marcus/opsdesk/internal/opportunity"
	"github.com/marcus/opsdesk/internal/ranking"
	"github.com/marcus/opsdesk/internal/workforce"
)

// Service is the subset of engine.Service the tools call.
type Service interface {
	NextActions(ctx context.Context, userID string) ([]ranking.Action, error)
	OptimizeRoute(ctx context.Context, userID string, req engine.RouteRequest) (engine.RoutePlan, error)
	ForecastDelayRisk(ctx context.Context, userID string, req engine.RiskRequest) ([]forecast.DayRisk, error)
	SuggestRedistribution(ctx context.Context, userID string, req engine.RedistributionRequest) (engine.RedistributionPlan, error)
	DetectOpportunity(ctx context.Context, userID string, req engine.OpportunityRequest) (opportunity.Report, error)
	RecalculateAllPriorities(ctx context.Context, userID string) ([]engine.ScoreResult, error)
}

// Server wraps the engine and exposes it as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Service
	user   string
	loc    *time.Location
	now    func() time.Time
}

// NewServer creates an MCP server acting as userID. Dates given to tools
// are interpreted in loc.
func NewServer(svc Service, userID string, loc *time.Location, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Server{
		svc:  svc,
		user: userID,
		loc:  loc,
		now:  time.Now,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "opsdesk", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type nextActionsInput struct{}

type actionOutput struct {
	TaskID          string  `json:"task_id"`
	Title           string  `json:"title"`
	Due             string  `json:"due,omitempty"`
	Value           float64 `json:"value"`
	PriorityScore   float64 `json:"priority_score"`
	Urgency         float64 `json:"urgency"`
	Revenue         float64 `json:"revenue"`
	DurationMinutes int     `json:"duration_minutes"`
}

type nextActionsOutput struct {
	Actions []actionOutput `json:"actions"`
	Count   int            `json:"count"`
}

type optimizeRouteInput struct {
	Day      string  `json:"day,omitempty" jsonschema:"calendar day YYYY-MM-DD, defaults to today"`
	BaseLat  float64 `json:"base_lat,omitempty" jsonschema:"latitude of the start and end point"`
	BaseLon  float64 `json:"base_lon,omitempty" jsonschema:"longitude of the start and end point"`
	UseBase  bool    `json:"use_base,omitempty" jsonschema:"set to true to start and end at base_lat/base_lon"`
	SpeedKmh float64 `json:"speed_kmh,omitempty" jsonschema:"average travel speed, defaults to the configured speed"`
}

type stopOutput struct {
	TaskID     string  `json:"task_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	LegMinutes float64 `json:"leg_minutes"`
}

type optimizeRouteOutput struct {
	Day           string       `json:"day"`
	Order         []string     `json:"order"`
	TravelMinutes float64      `json:"travel_minutes"`
	ReturnMinutes float64      `json:"return_minutes"`
	Stops         []stopOutput `json:"stops"`
	Skipped       int          `json:"skipped"`
}

type rangeInput struct {
	From            string `json:"from,omitempty" jsonschema:"first day YYYY-MM-DD, defaults to today"`
	To              string `json:"to,omitempty" jsonschema:"last day YYYY-MM-DD, defaults to from plus 6 days"`
	CapacityMinutes int    `json:"capacity_minutes,omitempty" jsonschema:"capacity override in minutes"`
}

type dayRiskOutput struct {
	Day             string  `json:"day"`
	ExpectedMinutes int     `json:"expected_minutes"`
	CapacityMinutes int     `json:"capacity_minutes"`
	Probability     float64 `json:"probability"`
	Reason          string  `json:"reason"`
}

type delayRiskOutput struct {
	Days  []dayRiskOutput `json:"days"`
	Count int             `json:"count"`
}

type suggestionOutput struct {
	TaskID         string `json:"task_id"`
	Title          string `json:"title"`
	From           string `json:"from"`
	To             string `json:"to"`
	BenefitMinutes int    `json:"benefit_minutes"`
}

type loadOutput struct {
	Assignee string `json:"assignee"`
	Minutes  int    `json:"minutes"`
	Capacity int    `json:"capacity"`
}

type redistributionOutput struct {
	From        string             `json:"from"`
	To          string             `json:"to"`
	Loads       []loadOutput       `json:"loads"`
	Suggestions []suggestionOutput `json:"suggestions"`
	Count       int                `json:"count"`
}

type opportunityInput struct {
	From          string  `json:"from,omitempty" jsonschema:"first day YYYY-MM-DD, defaults to today"`
	To            string  `json:"to,omitempty" jsonschema:"last day YYYY-MM-DD, defaults to from plus 6 days"`
	AvgJobMinutes int     `json:"avg_job_minutes,omitempty" jsonschema:"length of one job in minutes"`
	RevenuePerJob float64 `json:"revenue_per_job,omitempty" jsonschema:"revenue of one job"`
}

type opportunityOutput struct {
	FreeMinutes      int     `json:"free_minutes"`
	JobsThatFit      int     `json:"jobs_that_fit"`
	PotentialRevenue float64 `json:"potential_revenue"`
	DaysAnalyzed     int     `json:"days_analyzed"`
	AvgJobMinutes    int     `json:"avg_job_minutes"`
	RevenuePerJob    float64 `json:"revenue_per_job"`
}

type recalculateInput struct{}

type recalculateOutput struct {
	Updated int    `json:"updated"`
	Message string `json:"message"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "next_actions",
		Description: "Top pending tasks to work on now, ranked by priority score, due-date urgency and revenue, shorter tasks first on ties.",
	}, s.handleNextActions)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "optimize_route",
		Description: "Nearest-neighbor visit order for the geolocated pending tasks of one day, with estimated travel minutes. Advisory only, nothing is saved.",
	}, s.handleOptimizeRoute)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delay_risk",
		Description: "Days in a date range whose expected pending work exceeds daily capacity, with a breach probability and reason.",
	}, s.handleDelayRisk)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "redistribution",
		Description: "Suggested task moves from over-capacity assignees to assignees with spare capacity. Advisory only, nothing is saved.",
	}, s.handleRedistribution)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "money_opportunity",
		Description: "Free working minutes in a date range and how many jobs and how much revenue would fit into them.",
	}, s.handleMoneyOpportunity)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "recalculate_priorities",
		Description: "Recompute and store the priority score of every task in one transaction.",
	}, s.handleRecalculate)
}

// --- Tool handlers ---

func (s *Server) handleNextActions(ctx context.Context, _ *gomcp.CallToolRequest, _ nextActionsInput) (*gomcp.CallToolResult, nextActionsOutput, error) {
	actions, err := s.svc.NextActions(ctx, s.user)
	if err != nil {
		return errorResult(describe("ranking actions", err)), nextActionsOutput{}, nil
	}

	out := nextActionsOutput{Actions: make([]actionOutput, len(actions)), Count: len(actions)}
	for i, a := range actions {
		out.Actions[i] = actionOutput{
			TaskID:          a.TaskID,
			Title:           a.Title,
			Value:           a.Value,
			PriorityScore:   a.PriorityScore,
			Urgency:         a.Urgency,
			Revenue:         a.Revenue,
			DurationMinutes: a.DurationMinutes,
		}
		if a.DueDate != nil {
			out.Actions[i].Due = a.DueDate.Format(time.RFC3339)
		}
	}
	return nil, out, nil
}

func (s *Server) handleOptimizeRoute(ctx context.Context, _ *gomcp.CallToolRequest, input optimizeRouteInput) (*gomcp.CallToolResult, optimizeRouteOutput, error) {
	day, err := engine.ParseDay("day", input.Day, s.loc)
	if err != nil {
		return errorResult(err.Error()), optimizeRouteOutput{}, nil
	}
	if day.IsZero() {
		day = s.now().In(s.loc)
	}

	req := engine.RouteRequest{Day: day, SpeedKmh: input.SpeedKmh}
	if input.UseBase {
		req.Base = &geo.Point{Lat: input.BaseLat, Lon: input.BaseLon}
	}
	plan, err := s.svc.OptimizeRoute(ctx, s.user, req)
	if err != nil {
		return errorResult(describe("optimizing route", err)), optimizeRouteOutput{}, nil
	}

	out := optimizeRouteOutput{
		Day:           plan.Day,
		Order:         plan.Order,
		TravelMinutes: plan.TravelMinutes,
		ReturnMinutes: plan.ReturnMinutes,
		Stops:         make([]stopOutput, len(plan.Stops)),
		Skipped:       plan.Skipped,
	}
	if out.Order == nil {
		out.Order = []string{}
	}
	for i, st := range plan.Stops {
		out.Stops[i] = stopOutput{TaskID: st.TaskID, Lat: st.Point.Lat, Lon: st.Point.Lon, LegMinutes: st.LegMinutes}
	}
	return nil, out, nil
}

func (s *Server) handleDelayRisk(ctx context.Context, _ *gomcp.CallToolRequest, input rangeInput) (*gomcp.CallToolResult, delayRiskOutput, error) {
	from, to, err := s.parseRange(input.From, input.To)
	if err != nil {
		return errorResult(err.Error()), delayRiskOutput{}, nil
	}

	risks, err := s.svc.ForecastDelayRisk(ctx, s.user, engine.RiskRequest{From: from, To: to, CapacityMinutes: input.CapacityMinutes})
	if err != nil {
		return errorResult(describe("forecasting delay risk", err)), delayRiskOutput{}, nil
	}

	out := delayRiskOutput{Days: make([]dayRiskOutput, len(risks)), Count: len(risks)}
	for i, r := range risks {
		out.Days[i] = dayRiskOutput{
			Day:             r.Day,
			ExpectedMinutes: r.ExpectedMinutes,
			CapacityMinutes: r.CapacityMinutes,
			Probability:     r.Probability,
			Reason:          r.Reason,
		}
	}
	return nil, out, nil
}

func (s *Server) handleRedistribution(ctx context.Context, _ *gomcp.CallToolRequest, input rangeInput) (*gomcp.CallToolResult, redistributionOutput, error) {
	from, to, err := s.parseRange(input.From, input.To)
	if err != nil {
		return errorResult(err.Error()), redistributionOutput{}, nil
	}

	plan, err := s.svc.SuggestRedistribution(ctx, s.user, engine.RedistributionRequest{From: from, To: to, CapacityMinutes: input.CapacityMinutes})
	if err != nil {
		return errorResult(describe("planning redistribution", err)), redistributionOutput{}, nil
	}

	out := redistributionOutput{
		From:        plan.From,
		To:          plan.To,
		Loads:       make([]loadOutput, len(plan.Loads)),
		Suggestions: make([]suggestionOutput, len(plan.Suggestions)),
		Count:       len(plan.Suggestions),
	}
	for i, l := range plan.Loads {
		out.Loads[i] = loadOutput{Assignee: assigneeLabel(l.Assignee), Minutes: l.Minutes, Capacity: l.Capacity}
	}
	for i, sg := range plan.Suggestions {
		out.Suggestions[i] = suggestionOutput{
			TaskID:         sg.TaskID,
			Title:          sg.Title,
			From:           assigneeLabel(sg.From),
			To:             assigneeLabel(sg.To),
			BenefitMinutes: sg.BenefitMinutes,
		}
	}
	return nil, out, nil
}

func (s *Server) handleMoneyOpportunity(ctx context.Context, _ *gomcp.CallToolRequest, input opportunityInput) (*gomcp.CallToolResult, opportunityOutput, error) {
	from, to, err := s.parseRange(input.From, input.To)
	if err != nil {
		return errorResult(err.Error()), opportunityOutput{}, nil
	}

	report, err := s.svc.DetectOpportunity(ctx, s.user, engine.OpportunityRequest{
		From:          from,
		To:            to,
		AvgJobMinutes: input.AvgJobMinutes,
		RevenuePerJob: input.RevenuePerJob,
	})
	if err != nil {
		return errorResult(describe("detecting opportunity", err)), opportunityOutput{}, nil
	}

	return nil, opportunityOutput{
		FreeMinutes:      report.FreeMinutes,
		JobsThatFit:      report.JobsThatFit,
		PotentialRevenue: report.PotentialRevenue,
		DaysAnalyzed:     report.DaysAnalyzed,
		AvgJobMinutes:    report.AvgJobMinutes,
		RevenuePerJob:    report.RevenuePerJob,
	}, nil
}

func (s *Server) handleRecalculate(ctx context.Context, _ *gomcp.CallToolRequest, _ recalculateInput) (*gomcp.CallToolResult, recalculateOutput, error) {
	results, err := s.svc.RecalculateAllPriorities(ctx, s.user)
	if err != nil {
		return errorResult(describe("recalculating priorities", err)), recalculateOutput{}, nil
	}
	return nil, recalculateOutput{
		Updated: len(results),
		Message: fmt.Sprintf("recalculated %d task priorities", len(results)),
	}, nil
}

// --- Helpers ---

// parseRange defaults from to today and to to six days after from.
func (s *Server) parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := engine.ParseDay("from", fromStr, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.IsZero() {
		from = s.now().In(s.loc)
	}
	to, err := engine.ParseDay("to", toStr, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 6)
	}
	return from, to, nil
}

func assigneeLabel(id string) string {
	if id == "" {
		return workforce.Unassigned
	}
	return id
}

// describe turns engine errors into a message for the client. Store
// failures are not detailed.
func describe(action string, err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument), errors.Is(err, engine.ErrUnauthorized):
		return fmt.Sprintf("%s: %s", action, err)
	case errors.Is(err, engine.ErrNotFound):
		return fmt.Sprintf("%s: not found", action)
	default:
		return fmt.Sprintf("%s failed, try again", action)
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
