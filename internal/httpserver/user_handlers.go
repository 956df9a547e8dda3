package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/genericchat/backend/internal/domain"
	"github.com/genericchat/backend/internal/identity"
	"github.com/genericchat/backend/internal/service"
)

func handleListAccounts(dirSvc *service.DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := dirSvc.ListAccounts(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleSearchAccounts(dirSvc *service.DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := dirSvc.SearchAccounts(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// handleAccountExists accepts either a raw email or an already-canonical key.
func handleAccountExists(dirSvc *service.DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing email parameter"})
			return
		}
		exists, err := dirSvc.AccountExists(r.Context(), identity.Canonicalize(email))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
	}
}

func handleProfilePictureURL(dirSvc *service.DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := domain.CanonicalKey(chi.URLParam(r, "accountKey"))
		url, err := dirSvc.ProfilePictureURL(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}
