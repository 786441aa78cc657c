package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// startFrameTimeout bounds how long the trunk may take to send its start
// frame after the socket upgrade.
const startFrameTimeout = 10 * time.Second

// CallHandler runs one call over an established media stream. It returns when
// the call is over; the handler closes the stream afterwards.
type CallHandler interface {
	HandleCall(ctx context.Context, agentID string, stream *MediaStream) error
}

// Handler is the media WebSocket endpoint the trunk dials when a call is
// answered. Mount it at "/agent/{agent}".
type Handler struct {
	calls  CallHandler
	logger *slog.Logger
}

// NewHandler returns a Handler dispatching accepted calls to calls.
func NewHandler(calls CallHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{calls: calls, logger: logger}
}

// ServeHTTP upgrades the connection, waits for the start frame and hands the
// stream to the call handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent")
	if agentID == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("media socket accept failed", "agent", agentID, "error", err)
		return
	}

	ctx := r.Context()
	log := h.logger.With("agent", agentID)
	log.Info("media socket connected")

	start, err := readStartFrame(ctx, conn)
	if err != nil {
		log.Warn("no start frame", "error", err)
		conn.Close(websocket.StatusPolicyViolation, "expected start frame")
		return
	}

	log = log.With("call_id", start.CallID, "stream_id", start.StreamID)
	log.Info("call started", "from", start.From, "to", start.To, "direction", start.Direction)

	stream := newMediaStream(ctx, conn, start)
	go stream.run()

	if err := h.calls.HandleCall(ctx, agentID, stream); err != nil {
		log.Error("call handler failed", "error", err)
	}

	stream.Close("call ended")
	log.Info("media socket closed")
}

// readStartFrame reads messages until the start frame arrives, within
// startFrameTimeout. Non-start frames before it are a protocol violation.
func readStartFrame(ctx context.Context, conn *websocket.Conn) (StartInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, startFrameTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return StartInfo{}, err
	}

	frame, err := DecodeFrame(data)
	if err != nil {
		return StartInfo{}, err
	}
	if frame.Type != FrameStart {
		return StartInfo{}, errNotStart
	}
	return frame.Start, nil
}

type transportError string

func (e transportError) Error() string { return string(e) }

const errNotStart = transportError("transport: first frame was not a start frame")
