package tripo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// progressCall is one observed reporter invocation.
type progressCall struct {
	percent int
	status  TaskStatus
}

// recordingReporter collects every progress callback in order.
type recordingReporter struct {
	calls []progressCall
}

func (r *recordingReporter) OnProgress(percent int, status TaskStatus) {
	r.calls = append(r.calls, progressCall{percent, status})
}

// scriptedTaskServer answers GET /task/{id} with one scripted body per poll,
// repeating the last entry once the script runs out.
func scriptedTaskServer(t *testing.T, taskID string, bodies []string) http.Handler {
	var n atomic.Int64
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/task/"+taskID, r.URL.Path)

		i := int(n.Add(1)) - 1
		if i >= len(bodies) {
			i = len(bodies) - 1
		}
		w.Write([]byte(bodies[i]))
	})
}

func TestPollTaskReportsEveryPoll(t *testing.T) {
	c, _ := newTestClient(t, scriptedTaskServer(t, "task-1", []string{
		`{"code":0,"data":{"task_id":"task-1","status":"queued","progress":0}}`,
		`{"code":0,"data":{"task_id":"task-1","status":"running","progress":45}}`,
		`{"code":0,"data":{"task_id":"task-1","status":"success","progress":100,"output":{"model":"https://cdn.example/m.glb"}}}`,
	}))

	rep := &recordingReporter{}
	data, err := c.PollTask(context.Background(), "task-1", rep)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, data.Status)
	assert.Equal(t, "https://cdn.example/m.glb", data.Output.Model)

	// One callback per poll, in order, before status evaluation ended the loop.
	require.Equal(t, []progressCall{
		{0, StatusQueued},
		{45, StatusRunning},
		{100, StatusSuccess},
	}, rep.calls)
}

// The wall timeout is checked before each poll: with a timeout shorter than
// one poll interval the loop gives up before the second request.
func TestPollTaskTimesOutBeforeSecondPoll(t *testing.T) {
	var polls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Write([]byte(`{"code":0,"data":{"task_id":"task-slow","status":"running","progress":10}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		PollInterval: 60 * time.Millisecond,
		WallTimeout:  20 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	rep := &recordingReporter{}
	_, err = c.PollTask(context.Background(), "task-slow", rep)
	require.Error(t, err)

	assert.Equal(t, ErrJobTimeout, CodeOf(err))
	assert.Contains(t, err.Error(), "task-slow")
	assert.EqualValues(t, 1, polls.Load())
	assert.Len(t, rep.calls, 1)
}

func TestPollTaskTerminalFailures(t *testing.T) {
	tests := []struct {
		status  TaskStatus
		message string
		wantMsg string
	}{
		{StatusFailed, "geometry error", "geometry error"},
		{StatusCancelled, "", "no details"},
		{StatusUnknown, "", "no details"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			body := fmt.Sprintf(
				`{"code":0,"data":{"task_id":"task-2","status":%q,"progress":30,"message":%q}}`,
				tt.status, tt.message,
			)
			c, _ := newTestClient(t, scriptedTaskServer(t, "task-2", []string{body}))

			rep := &recordingReporter{}
			_, err := c.PollTask(context.Background(), "task-2", rep)
			require.Error(t, err)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, ErrJobFailed, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.TaskStatus)
			assert.Contains(t, apiErr.Message, tt.wantMsg)

			// The reporter still saw the final poll.
			require.Len(t, rep.calls, 1)
			assert.Equal(t, tt.status, rep.calls[0].status)
		})
	}
}

func TestPollTaskNilReporter(t *testing.T) {
	c, _ := newTestClient(t, scriptedTaskServer(t, "task-3", []string{
		`{"code":0,"data":{"task_id":"task-3","status":"success","progress":100,"output":{"model":"https://cdn.example/m.glb"}}}`,
	}))

	data, err := c.PollTask(context.Background(), "task-3", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, data.Status)
}

func TestPollTaskContextCancel(t *testing.T) {
	c, _ := newTestClient(t, scriptedTaskServer(t, "task-4", []string{
		`{"code":0,"data":{"task_id":"task-4","status":"running","progress":5}}`,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.PollTask(ctx, "task-4", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollTaskPollErrorSurfaces(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":2000,"message":"task not found"}`))
	}))

	_, err := c.PollTask(context.Background(), "task-5", nil)
	require.Error(t, err)
	assert.Equal(t, ErrServiceRejection, CodeOf(err))
}
