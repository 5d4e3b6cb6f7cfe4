package tripo

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// resolveModelURL picks the artifact URL from a successful task's output.
// Priority order: model, pbr_model, base_model; an empty string counts as
// absent. A success status with no usable entry is a contract violation by
// the service and is surfaced as a hard error, never retried.
func resolveModelURL(output TaskOutput) string {
	for _, url := range []string{output.Model, output.PBRModel, output.BaseModel} {
		if url != "" {
			return url
		}
	}
	return ""
}

// DownloadModel resolves the artifact URL from terminal task data and
// streams it to dest, creating missing parent directories and overwriting
// any existing file. The body is copied in bounded chunks; the whole
// artifact is never buffered in memory. A network failure mid-stream can
// leave a partial file at dest, which callers must treat as invalid.
func (c *Client) DownloadModel(ctx context.Context, data *TaskData, dest string) (string, error) {
	url := resolveModelURL(data.Output)
	if url == "" {
		return "", Errorf(ErrNoArtifact, "task %s output carries no model URL", data.TaskID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", NewError(ErrTransport, "failed to create download request").WithCause(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", NewError(ErrTransport, "model download failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", Errorf(ErrTransport, "model download returned HTTP %d", resp.StatusCode).
			WithHTTPStatus(resp.StatusCode)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", Errorf(ErrLocalIO, "cannot create directory %s", dir).WithCause(err)
		}
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", Errorf(ErrLocalIO, "cannot create %s", dest).WithCause(err)
	}
	defer f.Close()

	written, err := io.Copy(f, resp.Body)
	if err != nil {
		return "", Errorf(ErrLocalIO, "write to %s failed", dest).WithCause(err)
	}

	c.logger.Info("model downloaded",
		zap.String("task_id", data.TaskID),
		zap.String("dest", dest),
		zap.Int64("bytes", written),
	)
	return dest, nil
}
