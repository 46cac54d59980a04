package handler

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/pkg/errcode"
	"github.com/ragdesk/ragdesk/internal/pkg/response"
	"github.com/ragdesk/ragdesk/internal/rag"
	"github.com/ragdesk/ragdesk/internal/service"
)

type ChatHandler struct {
	chats *service.ChatService
	bus   *events.Bus
}

func NewChatHandler(chats *service.ChatService, bus *events.Bus) *ChatHandler {
	return &ChatHandler{chats: chats, bus: bus}
}

type createSessionRequest struct {
	AssistantID string `json:"assistant_id"`
	Title       string `json:"title"`
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	session, err := h.chats.CreateSession(c.Request.Context(), req.AssistantID, req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	items, err := h.chats.ListSessions(c.Request.Context(), c.Query("assistant_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	session, err := h.chats.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, session)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) RenameSession(c *gin.Context) {
	var req renameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.chats.RenameSession(c.Request.Context(), c.Param("id"), req.Title); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.chats.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	items, err := h.chats.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage runs one chat turn and relays the completion chunks to the
// client as server-sent events. The subscription is set up before the turn
// starts, so no chunk is lost.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	sessionID := c.Param("id")
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if _, err := h.chats.GetSession(c.Request.Context(), sessionID); err != nil {
		handleError(c, err)
		return
	}

	chunkCh, cancelChunks := h.bus.Subscribe(rag.EventStreamChunk(sessionID))
	errCh, cancelErrs := h.bus.Subscribe(rag.EventStreamError(sessionID))
	defer cancelChunks()
	defer cancelErrs()

	done := make(chan error, 1)
	go func() {
		done <- h.chats.SendMessage(c.Request.Context(), sessionID, req.Message)
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	finished := false
	c.Stream(func(w io.Writer) bool {
		if finished {
			return false
		}
		select {
		case event := <-chunkCh:
			writeSSE(w, "chunk", event.Payload)
			return true
		case event := <-errCh:
			writeSSE(w, "error", event.Payload)
			finished = true
			return true
		case err := <-done:
			// Flush chunks that were already queued before the turn
			// finished.
			for {
				select {
				case event := <-chunkCh:
					writeSSE(w, "chunk", event.Payload)
					continue
				default:
				}
				break
			}
			if err != nil {
				logutil.GetLogger(c.Request.Context()).Error("chat turn failed",
					zap.String("session_id", sessionID), zap.Error(err))
				select {
				case event := <-errCh:
					writeSSE(w, "error", event.Payload)
				default:
					writeSSE(w, "error", rag.StreamErrorEvent{Error: "chat turn failed"})
				}
			} else {
				writeSSE(w, "done", gin.H{})
			}
			finished = true
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeSSE(w io.Writer, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	io.WriteString(w, "event: "+event+"\n")
	io.WriteString(w, "data: "+string(data)+"\n\n")
}
