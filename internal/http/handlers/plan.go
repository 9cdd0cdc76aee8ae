package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/proofreel/internal/allocator"
)

// PlanHandler exposes the resource plan the pipeline started with.
type PlanHandler struct {
	plan func() allocator.Plan
}

// NewPlanHandler creates a plan handler. plan is called per request so a
// supervisor that has not started yet reports a zero plan.
func NewPlanHandler(plan func() allocator.Plan) *PlanHandler {
	return &PlanHandler{plan: plan}
}

// GetPlanInput is the input for the plan endpoint.
type GetPlanInput struct{}

// GetPlanOutput is the output for the plan endpoint.
type GetPlanOutput struct {
	Body allocator.Plan
}

// Register registers the plan route with the API.
func (h *PlanHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getPlan",
		Method:      "GET",
		Path:        "/api/v1/plan",
		Summary:     "Get resource plan",
		Description: "Returns the worker concurrency and encoder thread budget in effect",
		Tags:        []string{"System"},
	}, h.GetPlan)
}

// GetPlan returns the current resource plan.
func (h *PlanHandler) GetPlan(_ context.Context, _ *GetPlanInput) (*GetPlanOutput, error) {
	return &GetPlanOutput{Body: h.plan()}, nil
}
