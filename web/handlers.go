package web

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mberenty7/tripo-tools/tripo"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应
func WriteError(w http.ResponseWriter, status int, code, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", code),
			zap.String("message", message),
			zap.Int("status", status),
		)
	}
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// errorStatus 将客户端错误码映射为 HTTP 状态码
func errorStatus(code tripo.ErrorCode) int {
	switch code {
	case tripo.ErrLocalIO:
		return http.StatusInternalServerError
	case tripo.ErrServiceRejection:
		return http.StatusBadGateway
	case tripo.ErrJobTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// =============================================================================
// 🎯 生成任务 Handlers
// =============================================================================

// Handler 承载 Web 前端的所有 HTTP 端点
type Handler struct {
	manager *Manager
	balance func(r *http.Request) (*tripo.BalanceData, error)
	logger  *zap.Logger
}

// NewHandler 创建 Handler。balance 查询走独立的短生命周期客户端，
// 与生成 worker 互不共享状态。
func NewHandler(manager *Manager, balance func(r *http.Request) (*tripo.BalanceData, error), logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager: manager,
		balance: balance,
		logger:  logger.With(zap.String("component", "web_handler")),
	}
}

// maxUploadBytes 限制单次表单总大小（多视图最多数张图片）
const maxUploadBytes = 64 << 20

// HandleGenerate 处理 POST /api/generate。
// multipart 表单：prompt 或 1..N 张 images，加上与 CLI 一致的生成选项。
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid multipart form: "+err.Error(), h.logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["images"]
	}
	prompt := r.FormValue("prompt")

	kind := r.FormValue("kind")
	if kind == "" {
		// 按输入推断：有提示词走文生，单图走图生，多图走多视图
		switch {
		case prompt != "" && len(files) == 0:
			kind = "text"
		case len(files) == 1:
			kind = "image"
		case len(files) >= 2:
			kind = "multiview"
		default:
			WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "provide a prompt or at least one image", h.logger)
			return
		}
	}

	format := r.FormValue("format")
	if format == "" {
		format = "glb"
	}

	opts, err := parseOptions(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), h.logger)
		return
	}

	paths, err := saveUploads(files)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "LOCAL_IO", "failed to store uploads: "+err.Error(), h.logger)
		return
	}

	id, err := h.manager.Submit(Request{
		Kind:       kind,
		ImagePaths: paths,
		Prompt:     prompt,
		Format:     format,
		Options:    opts,
	})
	if err != nil {
		for _, p := range paths {
			_ = os.Remove(p)
		}
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), h.logger)
		return
	}

	WriteJSON(w, http.StatusAccepted, Response{
		Success:   true,
		Data:      map[string]string{"job_id": id},
		Timestamp: time.Now(),
	})
}

// HandleJob 处理 GET /api/jobs/{id}
func (h *Handler) HandleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	jobSnap, ok := h.manager.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown job "+id, h.logger)
		return
	}
	WriteSuccess(w, jobSnap)
}

// HandleModel 处理 GET /api/jobs/{id}/model，下发生成的模型文件
func (h *Handler) HandleModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	jobSnap, ok := h.manager.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown job "+id, h.logger)
		return
	}
	if jobSnap.State != JobSuccess || jobSnap.OutputPath == "" {
		WriteError(w, http.StatusConflict, "NOT_READY", "job has no artifact yet", h.logger)
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(jobSnap.OutputPath)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, jobSnap.OutputPath)
}

// HandleBalance 处理 GET /api/balance
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	data, err := h.balance(r)
	if err != nil {
		WriteError(w, errorStatus(tripo.CodeOf(err)), string(tripo.CodeOf(err)), err.Error(), h.logger)
		return
	}
	WriteSuccess(w, data)
}

// HandleHealthz 处理 GET /healthz
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// 🛠️ 表单解析
// =============================================================================

// parseOptions 将表单字段解析为生成选项。未填写的可选项保持未设置，
// 不会出现在提交给远端的请求体里。
func parseOptions(r *http.Request) (tripo.GenerationOptions, error) {
	opts := tripo.DefaultOptions()

	if v := r.FormValue("model_version"); v != "" && v != "default" {
		opts.ModelVersion = v
	}
	if v := r.FormValue("texture"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid texture value %q", v)
		}
		opts.Texture = b
	}
	if v := r.FormValue("pbr"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid pbr value %q", v)
		}
		opts.PBR = b
	}
	if v := r.FormValue("texture_quality"); v != "" {
		opts.TextureQuality = v
	}
	if v := r.FormValue("texture_alignment"); v != "" {
		opts.TextureAlignment = v
	}
	if v := r.FormValue("texture_seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid texture_seed %q", v)
		}
		opts.TextureSeed = &n
	}
	if v := r.FormValue("face_limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid face_limit %q", v)
		}
		opts.FaceLimit = &n
	}
	if v := r.FormValue("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid seed %q", v)
		}
		opts.Seed = &n
	}
	if v := r.FormValue("quad"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid quad value %q", v)
		}
		opts.Quad = b
	}
	if v := r.FormValue("auto_size"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid auto_size value %q", v)
		}
		opts.AutoSize = b
	}

	return opts, nil
}

// saveUploads 把上传的图片写入临时文件，按表单顺序返回路径。
// 任务结束后由 Manager 清理。
func saveUploads(files []*multipart.FileHeader) ([]string, error) {
	paths := make([]string, 0, len(files))
	cleanup := func() {
		for _, p := range paths {
			_ = os.Remove(p)
		}
	}

	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, err
		}

		dst, err := os.CreateTemp("", "tripo-upload-*"+filepath.Ext(fh.Filename))
		if err != nil {
			src.Close()
			cleanup()
			return nil, err
		}

		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			_ = os.Remove(dst.Name())
			cleanup()
			return nil, err
		}
		paths = append(paths, dst.Name())
	}
	return paths, nil
}
