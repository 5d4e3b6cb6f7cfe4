package tripo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// UploadImage sends a local image to the service and returns the opaque
// token the service uses to reference it. Failing to open the file is a
// local I/O error, distinct from any remote failure. Tokens are never
// cached: uploading the same file twice yields two tokens.
func (c *Client) UploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", Errorf(ErrLocalIO, "cannot open image %s", path).WithCause(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", Errorf(ErrLocalIO, "cannot stat image %s", path).WithCause(err)
	}
	c.logger.Info("uploading image",
		zap.String("path", path),
		zap.Int64("bytes", info.Size()),
	)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", NewError(ErrTransport, "failed to build multipart body").WithCause(err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", Errorf(ErrLocalIO, "cannot read image %s", path).WithCause(err)
	}
	if err := writer.Close(); err != nil {
		return "", NewError(ErrTransport, "failed to finalize multipart body").WithCause(err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	raw, err := c.send(req)
	if err != nil {
		return "", err
	}

	var data uploadData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", NewError(ErrMalformedResponse, "failed to decode upload data").WithCause(err)
	}
	if data.ImageToken == "" {
		return "", NewError(ErrMalformedResponse, "upload response missing image_token")
	}

	c.logger.Debug("image uploaded", zap.String("token_prefix", tokenPrefix(data.ImageToken)))
	return data.ImageToken, nil
}

// tokenPrefix shortens a token for logging; tokens are opaque but long.
func tokenPrefix(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
