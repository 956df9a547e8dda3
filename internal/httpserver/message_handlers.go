package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/genericchat/backend/internal/service"
)

func handleSendMessage(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := CurrentAccount(r)
		if account == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID := chi.URLParam(r, "conversationID")

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		// The caller's own index entry names the counterpart.
		conv, err := convSvc.Conversation(r.Context(), account.Key, conversationID)
		if err != nil {
			writeError(w, err)
			return
		}
		if conv == nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a participant in this conversation"})
			return
		}

		msg, err := convSvc.SendMessage(r.Context(), conversationID, conv.OtherUserKey, account.Key, req.toInput())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleListMessages(convSvc *service.ConversationService, maxPage int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := CurrentAccount(r)
		if account == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		conversationID := chi.URLParam(r, "conversationID")

		conv, err := convSvc.Conversation(r.Context(), account.Key, conversationID)
		if err != nil {
			writeError(w, err)
			return
		}
		if conv == nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a participant in this conversation"})
			return
		}

		limit := maxPage
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPage {
				limit = n
			}
		}

		msgs, err := convSvc.Messages(r.Context(), conversationID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}
