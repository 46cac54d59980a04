package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ragdesk/ragdesk/internal/pkg/errcode"
	"github.com/ragdesk/ragdesk/internal/pkg/response"
	"github.com/ragdesk/ragdesk/internal/service"
)

type KnowledgeHandler struct {
	knowledge *service.KnowledgeService
}

func NewKnowledgeHandler(knowledge *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

type createKnowledgeBaseRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	EmbeddingModel string `json:"embedding_model"`
}

func (h *KnowledgeHandler) Create(c *gin.Context) {
	var req createKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	kb, err := h.knowledge.Create(c.Request.Context(), req.Name, req.Description, req.EmbeddingModel)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, kb)
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	items, err := h.knowledge.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *KnowledgeHandler) Get(c *gin.Context) {
	kb, err := h.knowledge.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, kb)
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	if err := h.knowledge.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}
