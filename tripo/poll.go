package tripo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ProgressReporter receives one synchronous callback per status poll.
// Implementations back a CLI bar, a web progress widget, or anything else;
// the client depends on none of them. OnProgress runs inside the poll loop,
// so a blocking implementation stalls the pipeline. The remote service does
// not guarantee monotonically non-decreasing percentages.
type ProgressReporter interface {
	OnProgress(percent int, status TaskStatus)
}

// ProgressFunc adapts a plain function to ProgressReporter.
type ProgressFunc func(percent int, status TaskStatus)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(percent int, status TaskStatus) { f(percent, status) }

// getTask queries the status of a single job.
func (c *Client) getTask(ctx context.Context, taskID string) (*TaskData, error) {
	raw, err := c.do(ctx, http.MethodGet, "/task/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	var data TaskData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, NewError(ErrMalformedResponse, "failed to decode task data").WithCause(err)
	}
	return &data, nil
}

// PollTask polls a job at the configured fixed interval until it reaches a
// terminal state or the configured wall timeout elapses. The timeout is
// checked before every poll, not only after a response. reporter, when
// non-nil, is invoked exactly once per poll with the raw remote progress
// and status, before the status is evaluated. On success the full task
// payload is returned for the download step; a terminal failure or timeout
// aborts. Nothing here retries; envelope errors surface immediately.
func (c *Client) PollTask(ctx context.Context, taskID string, reporter ProgressReporter) (*TaskData, error) {
	start := time.Now()

	for {
		elapsed := time.Since(start)
		if elapsed > c.cfg.WallTimeout {
			return nil, Errorf(ErrJobTimeout, "task %s timed out after %ds", taskID, int(elapsed.Seconds()))
		}

		data, err := c.getTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		if reporter != nil {
			reporter.OnProgress(data.Progress, data.Status)
		}

		c.logger.Debug("task polled",
			zap.String("task_id", taskID),
			zap.String("status", string(data.Status)),
			zap.Int("progress", data.Progress),
		)

		switch data.Status {
		case StatusSuccess:
			return data, nil
		case StatusFailed, StatusCancelled, StatusUnknown:
			msg := data.Message
			if msg == "" {
				msg = "no details"
			}
			return nil, Errorf(ErrJobFailed, "task %s: %s", data.Status, msg).
				WithTaskStatus(data.Status)
		}

		select {
		case <-ctx.Done():
			return nil, NewError(ErrJobTimeout, "poll cancelled").WithCause(ctx.Err())
		case <-time.After(c.cfg.PollInterval):
		}
	}
}
