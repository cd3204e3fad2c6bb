package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"barista-backend/internal/models"
	"barista-backend/internal/session"
)

const defaultSessionID = "default"

type chatService interface {
	HandleTurn(ctx context.Context, sessionID, message string) (string, error)
	History(sessionID string) (session.History, error)
	Clear(sessionID string) error
}

type ChatHandler struct {
	chat chatService
}

func NewChatHandler(chat chatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("Invalid request body"))
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	log.Printf("Received message for session %s (%d chars)", sessionID, len(req.Message))

	reply, err := h.chat.HandleTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Response: reply, SessionID: sessionID})
}

func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	history, err := h.chat.History(sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.HistoryResponse{SessionID: sessionID, History: history})
}

func (h *ChatHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	if err := h.chat.Clear(sessionID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ClearResponse{Message: "Chat history cleared", SessionID: sessionID})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "OK", Message: "Server is running"})
}
