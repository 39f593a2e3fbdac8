package api

import (
	"strings"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/models"
	"chatstream/pkg/router"
)

func (h *handlers) listConversations(ctx *fasthttp.RequestCtx) {
	agentID := router.Param(ctx, "agentId")
	convs, err := h.d.Store.ListConversations(ctx, agentID)
	if err != nil {
		writeStoreError(ctx, "list_conversations", err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"conversations": convs})
}

func (h *handlers) getConversation(ctx *fasthttp.RequestCtx) {
	conv, err := h.d.Store.GetConversation(ctx, router.Param(ctx, "id"))
	if err != nil {
		writeStoreError(ctx, "get_conversation", err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, conv)
}

type updateConversationRequest struct {
	Title *string `json:"title"`
}

func (h *handlers) updateConversation(ctx *fasthttp.RequestCtx) {
	var req updateConversationRequest
	if err := router.ReadJSON(ctx, &req); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	if req.Title == nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "title is required")
		return
	}
	title := strings.TrimSpace(*req.Title)
	conv, err := h.d.Store.UpdateConversationMetadata(ctx, router.Param(ctx, "id"), models.ConversationUpdate{Title: &title})
	if err != nil {
		writeStoreError(ctx, "update_conversation", err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, conv)
}

func (h *handlers) listMessages(ctx *fasthttp.RequestCtx) {
	id := router.Param(ctx, "id")
	if _, err := h.d.Store.GetConversation(ctx, id); err != nil {
		writeStoreError(ctx, "list_messages", err)
		return
	}
	msgs, err := h.d.Store.ListMessages(ctx, id)
	if err != nil {
		writeStoreError(ctx, "list_messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"messages": msgs})
}
