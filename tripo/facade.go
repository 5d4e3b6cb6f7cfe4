package tripo

import (
	"context"

	"go.uber.org/zap"
)

// ImageTo3D runs the full single-image pipeline: upload, submit, poll,
// download. Returns the local path of the generated model. Each step's
// error propagates unchanged; there is no partial-success state.
func (c *Client) ImageTo3D(ctx context.Context, imagePath, outputPath string, opts GenerationOptions, reporter ProgressReporter) (string, error) {
	token, err := c.UploadImage(ctx, imagePath)
	if err != nil {
		return "", err
	}

	params := buildTaskParams(TaskImageToModel, opts)
	params.File = &fileRef{Type: "image_token", FileToken: token}

	return c.run(ctx, params, outputPath, reporter)
}

// TextTo3D runs the full text-prompt pipeline: submit, poll, download.
func (c *Client) TextTo3D(ctx context.Context, prompt, outputPath string, opts GenerationOptions, reporter ProgressReporter) (string, error) {
	params := buildTaskParams(TaskTextToModel, opts)
	params.Prompt = prompt

	return c.run(ctx, params, outputPath, reporter)
}

// MultiviewTo3D runs the multi-view pipeline: one upload per view in the
// given order (conventionally front, back, left, right), then submit, poll,
// download.
func (c *Client) MultiviewTo3D(ctx context.Context, imagePaths []string, outputPath string, opts GenerationOptions, reporter ProgressReporter) (string, error) {
	if len(imagePaths) < 2 {
		return "", Errorf(ErrLocalIO, "multiview needs at least 2 images, got %d", len(imagePaths))
	}

	files := make([]fileRef, 0, len(imagePaths))
	for _, path := range imagePaths {
		token, err := c.UploadImage(ctx, path)
		if err != nil {
			return "", err
		}
		files = append(files, fileRef{Type: "image_token", FileToken: token})
	}

	params := buildTaskParams(TaskMultiviewToModel, opts)
	params.Files = files

	return c.run(ctx, params, outputPath, reporter)
}

// run is the shared tail of every pipeline: submit, poll, download.
func (c *Client) run(ctx context.Context, params taskParams, outputPath string, reporter ProgressReporter) (string, error) {
	taskID, err := c.createTask(ctx, params)
	if err != nil {
		return "", err
	}

	data, err := c.PollTask(ctx, taskID, reporter)
	if err != nil {
		return "", err
	}

	path, err := c.DownloadModel(ctx, data, outputPath)
	if err != nil {
		return "", err
	}

	c.logger.Info("generation complete",
		zap.String("type", params.Type),
		zap.String("task_id", taskID),
		zap.String("output", path),
	)
	return path, nil
}
