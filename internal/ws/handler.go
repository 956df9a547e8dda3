package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/identity"
	"github.com/genericchat/backend/internal/security"
	"github.com/genericchat/backend/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol).
// On connect the caller's conversation index is streamed automatically
// (snapshot, then push updates). Dispatched events:
//   - message              -> send into an existing conversation
//   - create_conversation  -> start a conversation with its first message
//   - subscribe_messages   -> open a live view of a conversation's log
//   - unsubscribe_messages -> cancel the live view
//   - mark_read            -> flip the caller's preview read flag
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	directory domain.DirectoryRepository,
	convSvc *service.ConversationService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		key, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		account, err := directory.AccountByKey(r.Context(), key)
		if err != nil || account == nil {
			http.Error(w, "account not found", http.StatusUnauthorized)
			return
		}

		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := newConn(raw)
		defer conn.Close()

		ctx, stop := context.WithCancel(r.Context())
		defer stop()

		hub.Register(account.Key, conn)
		defer func() {
			hub.Unregister(account.Key, conn)
			hub.BroadcastAll(map[string]any{
				"type":  "user_offline",
				"email": account.Key,
				"name":  account.DisplayName(),
			})
		}()
		hub.BroadcastAll(map[string]any{
			"type":  "user_online",
			"email": account.Key,
			"name":  account.DisplayName(),
		})

		// The conversation index is always live for a connected client.
		convStream, cancelConvs, err := convSvc.SubscribeConversations(ctx, account.Key)
		if err != nil {
			sendError(conn, "failed to subscribe to conversations")
			return
		}
		defer cancelConvs()
		go func() {
			for list := range convStream {
				if err := conn.WriteJSON(map[string]any{
					"type":          "conversations",
					"conversations": list,
				}); err != nil {
					return
				}
			}
		}()

		// Per-conversation message streams, cancelled on unsubscribe or exit.
		msgCancels := make(map[string]func())
		defer func() {
			for _, cancel := range msgCancels {
				cancel()
			}
		}()

		for {
			var payload map[string]any
			if err := raw.ReadJSON(&payload); err != nil {
				break
			}
			msgType, _ := payload["type"].(string)
			switch msgType {

			case "message":
				convID, _ := payload["conversation_id"].(string)
				content, _ := payload["content"].(string)
				kind, _ := payload["content_type"].(string)
				if convID == "" || content == "" {
					sendError(conn, "message requires conversation_id and non-empty content")
					continue
				}
				conv, err := convSvc.Conversation(ctx, account.Key, convID)
				if err != nil || conv == nil {
					sendError(conn, "not a participant in this conversation")
					continue
				}
				msgID, _ := payload["id"].(string)
				if _, err := convSvc.SendMessage(ctx, convID, conv.OtherUserKey, account.Key, service.MessageInput{
					ID:      msgID,
					Kind:    domain.ContentKind(kind),
					Content: content,
				}); err != nil {
					log.Printf("ws: send message: %v", err)
					sendError(conn, "failed to send message")
					continue
				}

			case "create_conversation":
				otherEmail, _ := payload["other_user_email"].(string)
				name, _ := payload["name"].(string)
				content, _ := payload["content"].(string)
				kind, _ := payload["content_type"].(string)
				msgID, _ := payload["id"].(string)
				if otherEmail == "" || content == "" {
					sendError(conn, "create_conversation requires other_user_email and content")
					continue
				}
				convID, err := convSvc.CreateConversation(ctx, service.ConversationCreateInput{
					Initiator:   account.Key,
					Counterpart: identity.Canonicalize(otherEmail),
					Name:        name,
					FirstMessage: service.MessageInput{
						ID:      msgID,
						Kind:    domain.ContentKind(kind),
						Content: content,
					},
				})
				if err != nil {
					log.Printf("ws: create conversation: %v", err)
					sendError(conn, "failed to create conversation")
					continue
				}
				if err := conn.WriteJSON(map[string]any{
					"type":            "conversation_created",
					"conversation_id": convID,
				}); err != nil {
					return
				}

			case "subscribe_messages":
				convID, _ := payload["conversation_id"].(string)
				if convID == "" {
					continue
				}
				if _, ok := msgCancels[convID]; ok {
					continue
				}
				conv, err := convSvc.Conversation(ctx, account.Key, convID)
				if err != nil || conv == nil {
					sendError(conn, "not a participant in this conversation")
					continue
				}
				stream, cancel, err := convSvc.SubscribeMessages(ctx, convID)
				if err != nil {
					log.Printf("ws: subscribe messages: %v", err)
					sendError(conn, "failed to subscribe to messages")
					continue
				}
				msgCancels[convID] = cancel
				go func(convID string) {
					for list := range stream {
						if err := conn.WriteJSON(map[string]any{
							"type":            "messages",
							"conversation_id": convID,
							"messages":        list,
						}); err != nil {
							return
						}
					}
				}(convID)

			case "unsubscribe_messages":
				convID, _ := payload["conversation_id"].(string)
				if cancel, ok := msgCancels[convID]; ok {
					cancel()
					delete(msgCancels, convID)
				}

			case "mark_read":
				convID, _ := payload["conversation_id"].(string)
				if convID == "" {
					continue
				}
				if err := convSvc.MarkRead(ctx, account.Key, convID); err != nil {
					log.Printf("ws: mark_read: %v", err)
					sendError(conn, "failed to mark conversation as read")
				}

			default:
				log.Printf("ws: unknown event type %q from %s", msgType, account.Key)
			}
		}
	}
}

func sendError(conn *Conn, msg string) {
	_ = conn.WriteJSON(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
