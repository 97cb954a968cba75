package browsing

import (
	"net/http"
	"strconv"

	"github.com/grabarr/grabarr/internal/browse"
	"github.com/grabarr/grabarr/internal/proxy/controllers"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

type SessionResponse struct {
	Status    int    `json:"status"`
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
}

type ListRequest struct {
	Path string `json:"path"`
}

type ListResponse struct {
	Data []types.BrowseEntry `json:"data"`
}

// SessionCreateHandler opens a browse session against one remote.
func SessionCreateHandler(storeInstance *store.Store, sessions *browse.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		remoteID, err := strconv.ParseInt(r.PathValue("remote"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid remote id", http.StatusBadRequest)
			return
		}

		remote, err := storeInstance.Database.GetRemote(remoteID)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		_, cred, err := storeInstance.ResolveCredential(remote.CredentialID)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}

		sessionID, err := sessions.Create(r.Context(), remote, cred)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, http.StatusOK, SessionResponse{
			Status:    http.StatusOK,
			Success:   true,
			SessionID: sessionID,
		})
	}
}

// SessionHandler lists within a session (POST with a path) or ends it (DELETE).
func SessionHandler(sessions *browse.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("session")

		switch r.Method {
		case http.MethodPost:
			var req ListRequest
			if err := controllers.ReadJSON(r, &req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			entries, err := sessions.Browse(r.Context(), sessionID, req.Path)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			if entries == nil {
				entries = []types.BrowseEntry{}
			}
			controllers.WriteJSON(w, http.StatusOK, ListResponse{Data: entries})

		case http.MethodDelete:
			sessions.End(sessionID)
			controllers.WriteJSON(w, http.StatusOK, SessionResponse{
				Status:  http.StatusOK,
				Success: true,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}
