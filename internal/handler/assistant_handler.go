package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ragdesk/ragdesk/internal/pkg/errcode"
	"github.com/ragdesk/ragdesk/internal/pkg/response"
	"github.com/ragdesk/ragdesk/internal/service"
)

type AssistantHandler struct {
	assistants *service.AssistantService
}

func NewAssistantHandler(assistants *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistants: assistants}
}

type createAssistantRequest struct {
	Name             string   `json:"name"`
	Model            string   `json:"model"`
	SystemPrompt     string   `json:"system_prompt"`
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	KnowledgeBaseIDs []string `json:"knowledge_base_ids"`
}

func (h *AssistantHandler) Create(c *gin.Context) {
	var req createAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	assistant, err := h.assistants.Create(c.Request.Context(), service.CreateAssistantArgs{
		Name:             req.Name,
		Model:            req.Model,
		SystemPrompt:     req.SystemPrompt,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		KnowledgeBaseIDs: req.KnowledgeBaseIDs,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, assistant)
}

func (h *AssistantHandler) List(c *gin.Context) {
	items, err := h.assistants.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

func (h *AssistantHandler) Get(c *gin.Context) {
	assistant, err := h.assistants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, assistant)
}

func (h *AssistantHandler) Delete(c *gin.Context) {
	if err := h.assistants.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

type setKnowledgeBasesRequest struct {
	KnowledgeBaseIDs []string `json:"knowledge_base_ids"`
}

func (h *AssistantHandler) SetKnowledgeBases(c *gin.Context) {
	var req setKnowledgeBasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.assistants.SetKnowledgeBases(c.Request.Context(), c.Param("id"), req.KnowledgeBaseIDs); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *AssistantHandler) ListKnowledgeBases(c *gin.Context) {
	items, err := h.assistants.ListKnowledgeBases(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}
