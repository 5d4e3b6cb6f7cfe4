package tripo

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// buildTaskParams flattens GenerationOptions into the wire body for one
// task type. This is the single place options are serialized; the three
// pipelines differ only in the input fields they set. Unset optionals stay
// off the wire; texture and pbr are always sent.
func buildTaskParams(taskType string, opts GenerationOptions) taskParams {
	p := taskParams{
		Type:    taskType,
		Texture: opts.Texture,
		PBR:     opts.PBR,
	}
	if opts.ModelVersion != "" {
		p.ModelVersion = opts.ModelVersion
	}
	if opts.TextureQuality != "" && opts.TextureQuality != TextureQualityStandard {
		p.TextureQuality = opts.TextureQuality
	}
	p.TextureSeed = opts.TextureSeed
	if opts.TextureAlignment != "" {
		p.TextureAlignment = opts.TextureAlignment
	}
	p.FaceLimit = opts.FaceLimit
	p.Seed = opts.Seed
	if opts.Quad {
		p.Quad = true
	}
	if opts.AutoSize {
		p.AutoSize = true
	}
	return p
}

// createTask registers a generation job and returns its id. Params come
// from buildTaskParams via one of the facade pipelines.
func (c *Client) createTask(ctx context.Context, params taskParams) (string, error) {
	c.logger.Info("creating task",
		zap.String("type", params.Type),
		zap.String("model_version", params.ModelVersion),
	)

	raw, err := c.do(ctx, http.MethodPost, "/task", params)
	if err != nil {
		return "", err
	}

	var data createData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", NewError(ErrMalformedResponse, "failed to decode task creation data").WithCause(err)
	}
	if data.TaskID == "" {
		return "", NewError(ErrMalformedResponse, "task response missing task_id")
	}

	c.logger.Info("task created", zap.String("task_id", data.TaskID))
	return data.TaskID, nil
}
