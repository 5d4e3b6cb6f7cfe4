package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mberenty7/tripo-tools/tripo"
)

// newTestFrontend wires a Handler with a stubbed API behind the manager and
// the same route patterns the real server uses.
func newTestFrontend(t *testing.T, pollBodies []string, balance func(r *http.Request) (*tripo.BalanceData, error)) (*httptest.Server, *Manager) {
	t.Helper()

	api, setBodies := stubAPI(t)
	if pollBodies == nil {
		pollBodies = successPollBodies(api.URL)
	}
	setBodies(pollBodies)

	m := newTestManager(t, api.URL)
	h := NewHandler(m, balance, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", h.HandleGenerate)
	mux.HandleFunc("GET /api/jobs/{id}", h.HandleJob)
	mux.HandleFunc("GET /api/jobs/{id}/events", h.HandleEvents)
	mux.HandleFunc("GET /api/jobs/{id}/model", h.HandleModel)
	mux.HandleFunc("GET /api/balance", h.HandleBalance)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, m
}

// multipartBody builds a multipart form from fields and optional image parts.
func multipartBody(t *testing.T, fields map[string]string, images map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range images {
		part, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleGenerateTextJob(t *testing.T) {
	srv, m := newTestFrontend(t, nil, nil)

	body, contentType := multipartBody(t, map[string]string{"prompt": "a red dragon"}, nil)
	resp, err := http.Post(srv.URL+"/api/generate", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	out := decodeResponse(t, resp)
	require.True(t, out.Success)
	data := out.Data.(map[string]any)
	id := data["job_id"].(string)
	require.NotEmpty(t, id)

	j := waitTerminal(t, m, id)
	assert.Equal(t, JobSuccess, j.State)
}

func TestHandleGenerateImageJob(t *testing.T) {
	srv, m := newTestFrontend(t, nil, nil)

	body, contentType := multipartBody(t,
		map[string]string{"format": "obj", "texture_quality": "detailed"},
		map[string][]byte{"cat.png": []byte("img")},
	)
	resp, err := http.Post(srv.URL+"/api/generate", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	out := decodeResponse(t, resp)
	id := out.Data.(map[string]any)["job_id"].(string)

	j, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, "image", j.Kind)
	assert.Equal(t, "obj", j.Format)
}

func TestHandleGenerateNoInput(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, nil)

	body, contentType := multipartBody(t, map[string]string{}, nil)
	resp, err := http.Post(srv.URL+"/api/generate", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.False(t, out.Success)
	require.NotNil(t, out.Error)
	assert.Equal(t, "INVALID_REQUEST", out.Error.Code)
}

func TestHandleGenerateBadOption(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, nil)

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "a cat", "face_limit": "lots"}, nil)
	resp, err := http.Post(srv.URL+"/api/generate", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleJobNotFound(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, nil)

	resp, err := http.Get(srv.URL + "/api/jobs/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, "NOT_FOUND", out.Error.Code)
}

func TestHandleModel(t *testing.T) {
	srv, m := newTestFrontend(t, nil, nil)

	body, contentType := multipartBody(t, map[string]string{"prompt": "a cat"}, nil)
	resp, err := http.Post(srv.URL+"/api/generate", contentType, body)
	require.NoError(t, err)
	id := decodeResponse(t, resp).Data.(map[string]any)["job_id"].(string)
	waitTerminal(t, m, id)

	resp, err = http.Get(srv.URL + "/api/jobs/" + id + "/model")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("glb bytes"), content)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".glb")
}

func TestHandleModelNotReady(t *testing.T) {
	srv, _ := newTestFrontend(t, []string{
		// Never terminal within the test window.
		`{"code":0,"data":{"task_id":"task-1","status":"running","progress":10}}`,
	}, nil)

	body, contentType := multipartBody(t, map[string]string{"prompt": "a cat"}, nil)
	resp, err := http.Post(srv.URL+"/api/generate", contentType, body)
	require.NoError(t, err)
	id := decodeResponse(t, resp).Data.(map[string]any)["job_id"].(string)

	resp, err = http.Get(srv.URL + "/api/jobs/" + id + "/model")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.Equal(t, "NOT_READY", out.Error.Code)
}

func TestHandleBalance(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, func(r *http.Request) (*tripo.BalanceData, error) {
		return &tripo.BalanceData{Balance: 99.5, Frozen: 2}, nil
	})

	resp, err := http.Get(srv.URL + "/api/balance")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeResponse(t, resp)
	require.True(t, out.Success)
	data := out.Data.(map[string]any)
	assert.Equal(t, 99.5, data["balance"])
}

func TestHandleBalanceError(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, func(r *http.Request) (*tripo.BalanceData, error) {
		return nil, tripo.NewError(tripo.ErrServiceRejection, "insufficient credits")
	})

	resp, err := http.Get(srv.URL + "/api/balance")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, string(tripo.ErrServiceRejection), out.Error.Code)
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleEventsStreams(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, nil)

	body, contentType := multipartBody(t, map[string]string{"prompt": "a cat"}, nil)
	resp, err := http.Post(srv.URL+"/api/generate", contentType, body)
	require.NoError(t, err)
	id := decodeResponse(t, resp).Data.(map[string]any)["job_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/api/jobs/" + id + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var last ProgressEvent
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		require.NoError(t, json.Unmarshal(data, &last))
		if last.Done {
			break
		}
	}

	assert.Equal(t, id, last.JobID)
	assert.Equal(t, JobSuccess, last.State)
	assert.True(t, last.Done)
}

func TestHandleEventsUnknownJob(t *testing.T) {
	srv, _ := newTestFrontend(t, nil, nil)

	resp, err := http.Get(srv.URL + "/api/jobs/nope/events")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestParseOptions(t *testing.T) {
	form := func(fields map[string]string) *http.Request {
		body, contentType := multipartBody(t, fields, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
		req.Header.Set("Content-Type", contentType)
		require.NoError(t, req.ParseMultipartForm(1<<20))
		return req
	}

	t.Run("defaults", func(t *testing.T) {
		opts, err := parseOptions(form(map[string]string{}))
		require.NoError(t, err)
		assert.True(t, opts.Texture)
		assert.True(t, opts.PBR)
		assert.Nil(t, opts.Seed)
		assert.Nil(t, opts.FaceLimit)
	})

	t.Run("full set", func(t *testing.T) {
		opts, err := parseOptions(form(map[string]string{
			"model_version":     "v2.5-20250123",
			"texture":           "false",
			"pbr":               "false",
			"texture_quality":   "detailed",
			"texture_alignment": "geometry",
			"texture_seed":      "7",
			"face_limit":        "10000",
			"seed":              "42",
			"quad":              "true",
			"auto_size":         "true",
		}))
		require.NoError(t, err)
		assert.Equal(t, "v2.5-20250123", opts.ModelVersion)
		assert.False(t, opts.Texture)
		assert.False(t, opts.PBR)
		assert.Equal(t, "detailed", opts.TextureQuality)
		assert.Equal(t, "geometry", opts.TextureAlignment)
		require.NotNil(t, opts.TextureSeed)
		assert.EqualValues(t, 7, *opts.TextureSeed)
		require.NotNil(t, opts.FaceLimit)
		assert.Equal(t, 10000, *opts.FaceLimit)
		require.NotNil(t, opts.Seed)
		assert.EqualValues(t, 42, *opts.Seed)
		assert.True(t, opts.Quad)
		assert.True(t, opts.AutoSize)
	})

	t.Run("bad seed", func(t *testing.T) {
		_, err := parseOptions(form(map[string]string{"seed": "not-a-number"}))
		assert.Error(t, err)
	})
}

