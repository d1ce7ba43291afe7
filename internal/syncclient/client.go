// Package syncclient pushes a parsed change-window workbook to the tracker
// API. It is the client side of the sync-excel tool: every workbook row is
// upserted through the normal update endpoint, then rows that the workbook no
// longer contains are pruned.
package syncclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"changewindow-tracker/internal/domain"
	httpapi "changewindow-tracker/internal/http"
	"changewindow-tracker/internal/importer"
	"changewindow-tracker/internal/service"
)

// Client talks to a running changewindow-tracker instance.
type Client struct {
	httpClient *resty.Client
	parser     *importer.Parser
	logger     *zap.Logger
	now        func() time.Time
}

// Summary reports what one sync run did.
type Summary struct {
	Sheets []string
	Pushed int
	Failed int
	Pruned int
}

func NewClient(baseURL, token string, parser *importer.Parser, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		httpClient.SetAuthToken(token)
	}

	return &Client{
		httpClient: httpClient,
		parser:     parser,
		logger:     logger,
		now:        time.Now,
	}
}

// SyncWorkbook parses the workbook and reconciles the server with it: every
// row is pushed through the update endpoint with last_synced_at stamped to
// the run start, then rows the server still holds from before the run are
// deleted. A row that fails to push is logged and skipped so one bad row
// cannot abort the whole run.
func (c *Client) SyncWorkbook(ctx context.Context, workbook io.Reader) (*Summary, error) {
	parsed, err := c.parser.Parse(workbook)
	if err != nil {
		return nil, err
	}

	start := c.now().UTC()
	summary := &Summary{Sheets: parsed.Sheets}

	for _, row := range parsed.Rows {
		if err := c.pushRow(ctx, row, start); err != nil {
			c.logger.Warn("failed to push activity",
				zap.String("group_id", row.GroupID),
				zap.Int("seq", row.Seq),
				zap.Error(err),
			)
			summary.Failed++
			continue
		}
		summary.Pushed++
	}

	stale, err := c.unsynced(ctx, start)
	if err != nil {
		return summary, fmt.Errorf("failed to list stale activities: %w", err)
	}
	for _, activity := range stale {
		if err := c.deleteActivity(ctx, activity.GroupID, activity.Seq); err != nil {
			c.logger.Warn("failed to prune activity",
				zap.String("group_id", activity.GroupID),
				zap.Int("seq", activity.Seq),
				zap.Error(err),
			)
			continue
		}
		summary.Pruned++
	}

	c.logger.Info("workbook sync finished",
		zap.Strings("sheets", summary.Sheets),
		zap.Int("pushed", summary.Pushed),
		zap.Int("failed", summary.Failed),
		zap.Int("pruned", summary.Pruned),
	)
	return summary, nil
}

func (c *Client) pushRow(ctx context.Context, row importer.Row, syncedAt time.Time) error {
	req := service.UpdateRequest{
		GroupID:      row.GroupID,
		Seq:          row.Seq,
		Title:        &row.Title,
		IsRollback:   &row.IsRollback,
		IsMilestone:  &row.IsMilestone,
		PlannedStart: row.PlannedStart,
		PlannedEnd:   row.PlannedEnd,
		RealStart:    row.RealStart,
		RealEnd:      row.RealEnd,
		LastSyncedAt: &syncedAt,
	}
	if row.Team != "" {
		req.Team = &row.Team
	}
	if row.PlannedMinutes > 0 {
		req.PlannedMinutes = &row.PlannedMinutes
	}
	if row.StatusText != "" {
		req.StatusText = &row.StatusText
	}

	var result httpapi.Result[service.UpdateOutcome]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Put("/api/v1/activity")
	if err != nil {
		return fmt.Errorf("failed to call update endpoint: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("update endpoint returned %d: %s", resp.StatusCode(), result.Message)
	}
	return nil
}

func (c *Client) unsynced(ctx context.Context, since time.Time) ([]domain.PlannedActivity, error) {
	var result httpapi.Result[[]domain.PlannedActivity]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("since", since.Format(time.RFC3339)).
		SetResult(&result).
		SetError(&result).
		Get("/api/v1/activities/unsynced")
	if err != nil {
		return nil, fmt.Errorf("failed to call unsynced endpoint: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unsynced endpoint returned %d: %s", resp.StatusCode(), result.Message)
	}
	return result.Result, nil
}

func (c *Client) deleteActivity(ctx context.Context, groupID string, seq int) error {
	var result httpapi.Result[map[string]any]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"group_id": groupID,
			"seq":      fmt.Sprintf("%d", seq),
			"planned":  "true",
		}).
		SetResult(&result).
		SetError(&result).
		Delete("/api/v1/activity")
	if err != nil {
		return fmt.Errorf("failed to call delete endpoint: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("delete endpoint returned %d: %s", resp.StatusCode(), result.Message)
	}
	return nil
}
