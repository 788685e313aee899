package dremio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrJobTimeout reports that a job did not reach a terminal state within the
// polling budget.
var ErrJobTimeout = errors.New("job polling budget exhausted")

// Terminal job states reported by the job endpoint.
const (
	JobStateCompleted = "COMPLETED"
	JobStateFailed    = "FAILED"
	JobStateCanceled  = "CANCELED"
)

type sqlRequest struct {
	SQL string `json:"sql"`
}

type sqlResponse struct {
	ID string `json:"id"`
}

type jobResponse struct {
	JobState     string `json:"jobState"`
	ErrorMessage string `json:"errorMessage"`
}

type jobResultsResponse struct {
	Schema []struct {
		Name string `json:"name"`
	} `json:"schema"`
}

// SubmitSQL submits a query and returns the job id.
func (c *Client) SubmitSQL(ctx context.Context, sql string) (string, error) {
	var out sqlResponse
	if err := c.do(ctx, "submitSQL", http.MethodPost, "api/v3/sql", sqlRequest{SQL: sql}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("sql response missing job id")
	}
	return out.ID, nil
}

// JobState fetches the current state of a job.
func (c *Client) JobState(ctx context.Context, jobID string) (string, error) {
	var out jobResponse
	endpoint := "api/v3/job/" + url.PathEscape(jobID)
	if err := c.do(ctx, "jobState", http.MethodGet, endpoint, nil, &out); err != nil {
		return "", err
	}
	return out.JobState, nil
}

// WaitForJob polls the job state on a fixed interval until the job completes,
// fails, the attempt budget runs out, or ctx is canceled.
func (c *Client) WaitForJob(ctx context.Context, jobID string) error {
	for attempt := 1; attempt <= c.jobPollAttempts; attempt++ {
		state, err := c.JobState(ctx, jobID)
		if err != nil {
			return err
		}
		switch state {
		case JobStateCompleted:
			return nil
		case JobStateFailed, JobStateCanceled:
			return fmt.Errorf("job %s ended in state %s", jobID, state)
		}

		if attempt == c.jobPollAttempts {
			break
		}
		c.logger.Printf("waiting for job %s (state=%s)", jobID, state)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.jobPollInterval):
		}
	}
	return fmt.Errorf("%w: job %s after %d attempts", ErrJobTimeout, jobID, c.jobPollAttempts)
}

// JobResults returns the column names of a completed job's result schema.
func (c *Client) JobResults(ctx context.Context, jobID string) ([]string, error) {
	var out jobResultsResponse
	endpoint := "api/v3/job/" + url.PathEscape(jobID) + "/results"
	if err := c.do(ctx, "jobResults", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(out.Schema))
	for _, field := range out.Schema {
		cols = append(cols, field.Name)
	}
	return cols, nil
}

// TableColumns discovers the column names of the table at sqlPath by running
// a zero-row projection and reading the result schema.
func (c *Client) TableColumns(ctx context.Context, sqlPath string) ([]string, error) {
	jobID, err := c.SubmitSQL(ctx, `SELECT * FROM "`+sqlPath+` LIMIT 0`)
	if err != nil {
		return nil, err
	}
	if err := c.WaitForJob(ctx, jobID); err != nil {
		return nil, err
	}
	cols, err := c.JobResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("table columns: %v", cols)
	return cols, nil
}
