package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tripot/companion/domain/entities"
	"github.com/tripot/companion/domain/repositories"
)

// Client fetches the reminder schedule from the backend over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

var _ repositories.ScheduleRepository = (*Client)(nil)

// NewClient creates a schedule client against the backend's HTTP origin,
// e.g. "http://host:8080". The token, when set, is sent as a bearer
// token.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// scheduleRow mirrors one entry of the backend's schedule response.
type scheduleRow struct {
	ID        int    `json:"id"`
	CallTime  string `json:"call_time"`
	IsEnabled bool   `json:"is_enabled"`
	CreatedAt string `json:"created_at"`
}

type scheduleResponse struct {
	Schedules []scheduleRow `json:"schedules"`
}

// Fetch returns the user's enabled call times. Rows that are disabled
// or malformed are dropped, not fatal.
func (c *Client) Fetch(ctx context.Context, userID string) (entities.Schedule, error) {
	url := fmt.Sprintf("%s/api/v1/schedule/%s", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entities.Schedule{}, fmt.Errorf("failed to create schedule request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return entities.Schedule{}, fmt.Errorf("schedule request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return entities.Schedule{}, fmt.Errorf("schedule request returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return entities.Schedule{}, fmt.Errorf("failed to decode schedule response: %w", err)
	}

	schedule := entities.Schedule{UserID: userID}
	for _, row := range decoded.Schedules {
		if !row.IsEnabled {
			continue
		}
		callTime, err := entities.ParseCallTime(row.CallTime)
		if err != nil {
			c.logger.Warn("skipping malformed call time",
				zap.Int("id", row.ID),
				zap.String("callTime", row.CallTime),
				zap.Error(err))
			continue
		}
		schedule.CallTimes = append(schedule.CallTimes, callTime)
	}

	c.logger.Debug("fetched schedule",
		zap.String("userID", userID),
		zap.Int("enabled", len(schedule.CallTimes)))
	return schedule, nil
}
