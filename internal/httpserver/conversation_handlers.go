package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/identity"
	"github.com/genericchat/backend/internal/service"
)

type messageRequest struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

func (m messageRequest) toInput() service.MessageInput {
	return service.MessageInput{
		ID:      m.ID,
		Kind:    domain.ContentKind(m.Type),
		Content: m.Content,
	}
}

type conversationCreateRequest struct {
	OtherUserEmail string         `json:"other_user_email"`
	Name           string         `json:"name"`
	FirstMessage   messageRequest `json:"first_message"`
}

func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		account := CurrentAccount(r)
		if account == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		id, err := convSvc.CreateConversation(r.Context(), service.ConversationCreateInput{
			Initiator:    account.Key,
			Counterpart:  identity.Canonicalize(req.OtherUserEmail),
			Name:         req.Name,
			FirstMessage: req.FirstMessage.toInput(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := CurrentAccount(r)
		if account == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		convs, err := convSvc.Conversations(r.Context(), account.Key)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := CurrentAccount(r)
		if account == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conv, err := convSvc.Conversation(r.Context(), account.Key, chi.URLParam(r, "conversationID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if conv == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleMarkConversationRead(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := CurrentAccount(r)
		if account == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if err := convSvc.MarkRead(r.Context(), account.Key, chi.URLParam(r, "conversationID")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
