package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kiranshivaraju/labelscan/internal/history"
	"github.com/kiranshivaraju/labelscan/internal/scan"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Message types on the scan socket.
const (
	MsgTypeScan       = "scan"
	MsgTypeGetHistory = "get_history"
	MsgTypeState      = "state"
	MsgTypeScanResult = "scan_result"
	MsgTypeHistory    = "history"
	MsgTypeError      = "error"
)

// Envelope is one frame on the scan socket in either direction.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsScanRequest struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSHandler streams scan progress over a websocket.
type WSHandler struct {
	scanner  Scanner
	recorder *Recorder
	history  history.Store
	upgrader websocket.Upgrader
	maxFrame int64
}

func NewWSHandler(scanner Scanner, recorder *Recorder, h history.Store, maxUpload int64) *WSHandler {
	return &WSHandler{
		scanner:  scanner,
		recorder: recorder,
		history:  h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		// base64 inflates the image by 4/3, plus the JSON envelope
		maxFrame: maxUpload*4/3 + 4096,
	}
}

// wsConn is one client socket. Only the read loop writes data frames.
type wsConn struct {
	conn  *websocket.Conn
	owner string
}

func (c *wsConn) send(msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(Envelope{Type: msgType, Data: raw})
}

func (c *wsConn) sendError(code, message string) error {
	return c.send(MsgTypeError, wsError{Code: code, Message: message})
}

// Serve handles GET /api/v1/scans/ws. Frames are handled one at a time, so a
// client must wait for scan_result or error before sending the next scan.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerOf(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(h.maxFrame)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	c := &wsConn{conn: conn, owner: owner}
	ctx := r.Context()

	// WriteControl may run concurrently with the read loop's writes.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	slog.Info("scan socket opened", "owner", owner)
	for {
		var msg Envelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("scan socket read failed", "owner", owner, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var werr error
		switch msg.Type {
		case MsgTypeScan:
			werr = h.handleScan(ctx, c, msg.Data)
		case MsgTypeGetHistory:
			werr = h.handleHistory(ctx, c)
		default:
			werr = c.sendError("UNKNOWN_MESSAGE", "Unknown message type: "+msg.Type)
		}
		if werr != nil {
			slog.Warn("scan socket write failed", "owner", owner, "error", werr)
			return
		}
	}
}

func (h *WSHandler) handleScan(ctx context.Context, c *wsConn, data json.RawMessage) error {
	var req wsScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return c.sendError("INVALID_REQUEST", "Invalid scan payload")
	}
	img, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return c.sendError("INVALID_REQUEST", "image must be base64 encoded")
	}
	file := scan.ImageFile{FileName: req.FileName, ContentType: req.ContentType, Data: img}

	var sendErr error
	observer := scan.ObserverFunc(func(_, to scan.State) {
		if sendErr != nil {
			return
		}
		sendErr = c.send(MsgTypeState, map[string]scan.State{"state": to})
	})

	out := h.scanner.ProcessImage(ctx, file, observer)
	if sendErr != nil {
		return sendErr
	}
	if !out.OK() {
		_, code := outcomeStatus(out.Kind)
		return c.sendError(code, out.Error)
	}

	result, err := h.recorder.Record(ctx, c.owner, file, out)
	if err != nil {
		slog.Error("recording scan", "error", err)
		return c.sendError("INTERNAL_ERROR", scan.MsgUnexpected)
	}
	return c.send(MsgTypeScanResult, scanResponse{Scan: result, Message: out.Message})
}

func (h *WSHandler) handleHistory(ctx context.Context, c *wsConn) error {
	results, err := h.history.List(ctx, c.owner)
	if err != nil {
		slog.Error("listing history", "owner", c.owner, "error", err)
		return c.sendError("INTERNAL_ERROR", "Could not load scan history")
	}
	if results == nil {
		results = []models.ScanResult{}
	}
	return c.send(MsgTypeHistory, results)
}
