package client

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/talentflow-ai/be-hr-pipeline/internal/httpclient"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// CatalogClient reads process templates from the process catalog service
// (HR-3). Templates and their steps are owned there; this service only
// consumes them.
type CatalogClient struct {
	http *httpclient.Client
}

// NewCatalogClient creates a new CatalogClient.
func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{http: httpclient.NewClient(baseURL)}
}

type processStepResponse struct {
	ID          string `json:"id"`
	TemplateID  string `json:"template_id"`
	StepOrder   int    `json:"step_order"`
	StepName    string `json:"step_name"`
	Description *string `json:"description,omitempty"`
}

type listStepsResponse struct {
	Steps []processStepResponse `json:"steps"`
}

// ListSteps returns the steps of a process template, ordered by step order.
func (c *CatalogClient) ListSteps(ctx context.Context, templateID string) ([]*repository.ProcessStep, error) {
	path := "/api/v1/process-templates/steps?template_id=" + url.QueryEscape(templateID)

	var resp listStepsResponse
	if err := c.http.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list template steps: %w", err)
	}

	steps := make([]*repository.ProcessStep, len(resp.Steps))
	for i, s := range resp.Steps {
		steps[i] = &repository.ProcessStep{
			ID:          s.ID,
			TemplateID:  s.TemplateID,
			StepOrder:   s.StepOrder,
			StepName:    s.StepName,
			Description: s.Description,
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })

	return steps, nil
}
