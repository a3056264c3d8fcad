package verify

import (
	"context"

	"planport/internal/remote"
)

// apiSource reads ground truth from the live REST API.
type apiSource struct {
	client *remote.Client
}

// NewAPISource returns a Source backed by the remote client.
func NewAPISource(client *remote.Client) Source {
	return &apiSource{client: client}
}

func (s *apiSource) Project(ctx context.Context, id int64) (*remote.ProjectRecord, error) {
	return s.client.GetProject(ctx, id)
}

func (s *apiSource) Task(ctx context.Context, id int64) (*remote.TaskRecord, error) {
	return s.client.GetTask(ctx, id)
}

func (s *apiSource) TaskHours(ctx context.Context, id int64) (float64, error) {
	entries, err := s.client.ListTimeEntries(ctx, id)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, entry := range entries {
		total += entry.Hours
	}
	return total, nil
}
