package mcp

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/identity"
	"github.com/standardbeagle/redefine/internal/redefine"
	"github.com/standardbeagle/redefine/internal/types"
)

var errPlanNotFound = errors.New("plan not found")

// DefinedType is one entry of a define_types response.
type DefinedType struct {
	Loader types.LoaderID `json:"loader"`
	Name   string         `json:"name"`
}

// PlanResponse describes a plan.
type PlanResponse struct {
	PlanID      string                    `json:"plan_id,omitempty"`
	Committed   bool                      `json:"committed"`
	Matches     []redefine.Match          `json:"matches"`
	Removed     []string                  `json:"removed,omitempty"`
	Renames     int                       `json:"renames"`
	Generations map[types.LoaderID]uint64 `json:"generations"`
}

// LoaderStatus is the cache_status entry of one loader.
type LoaderStatus struct {
	Loader     types.LoaderID       `json:"loader"`
	Generation uint64               `json:"generation"`
	HostTypes  int                  `json:"host_types"`
	Entries    []identity.EntryView `json:"entries"`
}

func (s *Server) handleDefineTypes(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ClassesParams
	if err := decodeParams(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("define_types", err)
	}
	defs, err := p.load(s.files)
	if err != nil {
		return createErrorResponse("define_types", err)
	}

	defined := make([]DefinedType, 0, len(defs))
	for _, b := range defs {
		t, err := s.host.Define(p.loaderID(), b)
		if err != nil {
			return createErrorResponse("define_types", fmt.Errorf("defined %d of %d: %w", len(defined), len(defs), err))
		}
		defined = append(defined, DefinedType{Loader: t.Loader(), Name: t.Name()})
	}
	s.diagnosticLogger.Printf("Defined %d types in loader %s", len(defined), p.Loader)
	return createJSONResponse(map[string]interface{}{"defined": defined})
}

func (s *Server) handlePlanRedefinition(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ClassesParams
	if err := decodeParams(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("plan_redefinition", err)
	}
	reqs, err := s.requests(&p)
	if err != nil {
		return createErrorResponse("plan_redefinition", err)
	}

	plan, err := s.engine.Plan(ctx, reqs)
	if err != nil {
		return createErrorResponse("plan_redefinition", err)
	}

	id := fmt.Sprintf("plan-%d", s.planSeq.Add(1))
	s.plans.Add(id, plan)
	debug.LogMCP("stored %s: %d descriptors, %d removed\n", id, len(plan.Descriptors), len(plan.Removed))
	return createJSONResponse(planResponse(id, plan))
}

func (s *Server) handleCommitPlan(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p PlanParams
	if err := decodeParams(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("commit_plan", err)
	}
	plan, ok := s.plans.Get(p.PlanID)
	if !ok {
		return createErrorResponse("commit_plan", fmt.Errorf("%w: %s", errPlanNotFound, p.PlanID))
	}
	if err := s.engine.Commit(plan); err != nil {
		return createErrorResponse("commit_plan", err)
	}
	s.plans.Remove(p.PlanID)
	debug.LogMCP("committed %s\n", p.PlanID)

	resp := planResponse(p.PlanID, plan)
	for id := range resp.Generations {
		resp.Generations[id] = s.engine.Cache().Generation(id)
	}
	return createJSONResponse(resp)
}

func (s *Server) handleRedefine(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ClassesParams
	if err := decodeParams(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("redefine", err)
	}
	reqs, err := s.requests(&p)
	if err != nil {
		return createErrorResponse("redefine", err)
	}

	res, err := s.engine.Redefine(ctx, reqs, nil)
	if err != nil {
		return createErrorResponse("redefine", err)
	}
	if err := res.Apply(s.host); err != nil {
		// The cache already holds the new generation; report what the
		// host could not take.
		return createErrorResponse("redefine", fmt.Errorf("committed but not fully applied: %w", err))
	}

	debug.LogMCP("redefined %d types, %d removed\n", len(res.Plan.Descriptors), len(res.Plan.Removed))
	resp := planResponse("", res.Plan)
	for id := range resp.Generations {
		resp.Generations[id] = s.engine.Cache().Generation(id)
	}
	return createJSONResponse(resp)
}

func (s *Server) handleCacheStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p StatusParams
	if err := decodeParams(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("cache_status", err)
	}

	cache := s.engine.Cache()
	loaders := cache.Loaders()
	if p.Loader != "" {
		loaders = []types.LoaderID{types.LoaderID(p.Loader)}
	}
	status := make([]LoaderStatus, 0, len(loaders))
	for _, id := range loaders {
		status = append(status, LoaderStatus{
			Loader:     id,
			Generation: cache.Generation(id),
			HostTypes:  len(s.host.Names(id)),
			Entries:    cache.Snapshot(id),
		})
	}
	debug.LogMCP("cache status for %d loaders\n", len(status))
	return createJSONResponse(map[string]interface{}{"loaders": status})
}

// requests builds one request per definition. The engine finds the
// previous generation through the host index.
func (s *Server) requests(p *ClassesParams) ([]redefine.Request, error) {
	defs, err := p.load(s.files)
	if err != nil {
		return nil, err
	}
	reqs := make([]redefine.Request, len(defs))
	for i, b := range defs {
		reqs[i] = redefine.Request{Loader: p.loaderID(), Bytes: b}
	}
	return reqs, nil
}

func planResponse(id string, plan *redefine.Plan) PlanResponse {
	resp := PlanResponse{
		PlanID:      id,
		Committed:   plan.Committed(),
		Matches:     plan.Matches,
		Generations: plan.Generations(),
	}
	for _, d := range plan.Descriptors {
		if d.IsRenamed() {
			resp.Renames++
		}
	}
	for _, r := range plan.Removed {
		r.Walk(func(d *descriptor.TypeDescriptor) bool {
			resp.Removed = append(resp.Removed, d.CurrentName())
			return true
		})
	}
	slices.Sort(resp.Removed)
	return resp
}
