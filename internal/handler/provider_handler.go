package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ragdesk/ragdesk/internal/pkg/errcode"
	"github.com/ragdesk/ragdesk/internal/pkg/response"
	"github.com/ragdesk/ragdesk/internal/provider"
	"github.com/ragdesk/ragdesk/internal/websearch"
)

type ProviderHandler struct {
	providers *provider.Service
	web       *websearch.Service
}

func NewProviderHandler(providers *provider.Service, web *websearch.Service) *ProviderHandler {
	return &ProviderHandler{providers: providers, web: web}
}

func (h *ProviderHandler) List(c *gin.Context) {
	response.Success(c, gin.H{"items": h.providers.Providers()})
}

func (h *ProviderHandler) ListModels(c *gin.Context) {
	models, err := h.providers.ListModels(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, errcode.ErrProviderUnavailable, err.Error())
		return
	}
	response.Success(c, gin.H{"items": models})
}

func (h *ProviderHandler) TestConnection(c *gin.Context) {
	if err := h.providers.TestConnection(c.Request.Context(), c.Param("name")); err != nil {
		response.Error(c, errcode.ErrProviderUnavailable, err.Error())
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}

// TestWebSearch verifies the configured web search backend end to end.
func (h *ProviderHandler) TestWebSearch(c *gin.Context) {
	if !h.web.Enabled() {
		response.Error(c, errcode.ErrProviderUnavailable, "web search not configured")
		return
	}
	if err := h.web.TestConnection(c.Request.Context()); err != nil {
		response.Error(c, errcode.ErrProviderUnavailable, err.Error())
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}
