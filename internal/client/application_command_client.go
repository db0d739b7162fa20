package client

import (
	"context"
	"fmt"

	"github.com/talentflow-ai/be-hr-pipeline/internal/httpclient"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// ApplicationCommandClient talks to the application command service (HR-1),
// the sole writer of application rows. Status cascades computed here are
// pushed through it rather than written directly.
type ApplicationCommandClient struct {
	http *httpclient.Client
}

// NewApplicationCommandClient creates a new ApplicationCommandClient.
func NewApplicationCommandClient(baseURL string) *ApplicationCommandClient {
	return &ApplicationCommandClient{http: httpclient.NewClient(baseURL)}
}

type updateStatusRequest struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
}

// UpdateApplicationStatus asks the command service to move an application to
// the given status.
func (c *ApplicationCommandClient) UpdateApplicationStatus(ctx context.Context, applicationID string, status repository.ApplicationStatus) error {
	req := updateStatusRequest{ApplicationID: applicationID, Status: string(status)}
	if err := c.http.Post(ctx, "/api/v1/applications/status", req, nil); err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	return nil
}
