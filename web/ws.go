package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// wsWriteTimeout 单条事件的写超时。慢消费者直接断开，不拖住推送循环。
const wsWriteTimeout = 10 * time.Second

// HandleEvents 处理 GET /api/jobs/{id}/events。
// 把任务的进度事件升级为 WebSocket 推送，任务终态后发送最后一条事件并正常关闭。
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, cancel, err := h.manager.Subscribe(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), h.logger)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	ctx := r.Context()
	// 读循环只用于感知客户端主动断开
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range events {
		if err := writeEvent(ctx, conn, ev); err != nil {
			h.logger.Debug("websocket write failed", zap.String("job_id", id), zap.Error(err))
			return
		}
		if ev.Done {
			break
		}
	}

	conn.Close(websocket.StatusNormalClosure, "job finished")
}

// writeEvent 将事件序列化为 JSON 并带超时写入连接
func writeEvent(ctx context.Context, conn *websocket.Conn, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
