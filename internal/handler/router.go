package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragdesk/ragdesk/internal/middleware"
)

type RouterDeps struct {
	Knowledge  *KnowledgeHandler
	Files      *FileHandler
	Assistants *AssistantHandler
	Chats      *ChatHandler
	Providers  *ProviderHandler
	Events     *EventsHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/knowledge-bases", deps.Knowledge.Create)
	api.GET("/knowledge-bases", deps.Knowledge.List)
	api.GET("/knowledge-bases/:id", deps.Knowledge.Get)
	api.DELETE("/knowledge-bases/:id", deps.Knowledge.Delete)

	api.POST("/knowledge-bases/:id/files", middleware.RateLimit(time.Second), deps.Files.Upload)
	api.GET("/knowledge-bases/:id/files", deps.Files.List)
	api.GET("/files/:fileId", deps.Files.Get)
	api.POST("/files/:fileId/process", middleware.RateLimit(time.Second), deps.Files.Process)
	api.DELETE("/files/:fileId", deps.Files.Delete)
	api.GET("/files/events", deps.Events.FileProgress)

	api.POST("/assistants", deps.Assistants.Create)
	api.GET("/assistants", deps.Assistants.List)
	api.GET("/assistants/:id", deps.Assistants.Get)
	api.DELETE("/assistants/:id", deps.Assistants.Delete)
	api.PUT("/assistants/:id/knowledge-bases", deps.Assistants.SetKnowledgeBases)
	api.GET("/assistants/:id/knowledge-bases", deps.Assistants.ListKnowledgeBases)

	api.POST("/chat/sessions", deps.Chats.CreateSession)
	api.GET("/chat/sessions", deps.Chats.ListSessions)
	api.GET("/chat/sessions/:id", deps.Chats.GetSession)
	api.PUT("/chat/sessions/:id/title", deps.Chats.RenameSession)
	api.DELETE("/chat/sessions/:id", deps.Chats.DeleteSession)
	api.GET("/chat/sessions/:id/messages", deps.Chats.ListMessages)
	api.POST("/chat/sessions/:id/messages", middleware.RateLimit(time.Second), deps.Chats.SendMessage)

	api.GET("/providers", deps.Providers.List)
	api.GET("/providers/:name/models", deps.Providers.ListModels)
	api.POST("/providers/:name/test", deps.Providers.TestConnection)
	api.POST("/websearch/test", deps.Providers.TestWebSearch)
}
