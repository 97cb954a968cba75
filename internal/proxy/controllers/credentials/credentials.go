package credentials

import (
	"net/http"
	"strconv"

	"github.com/grabarr/grabarr/internal/proxy/controllers"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

// CredentialRequest carries the secret payload in clear over the API; it is
// encrypted before it touches the database and never returned.
type CredentialRequest struct {
	Name string               `json:"name"`
	Type string               `json:"type"`
	Data types.CredentialData `json:"data"`
}

type CredentialsResponse struct {
	Data []types.Credential `json:"data"`
}

type CredentialConfigResponse struct {
	Status  int              `json:"status"`
	Success bool             `json:"success"`
	Data    types.Credential `json:"data,omitempty"`
}

func credentialID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("credential"), 10, 64)
}

func CredentialsHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			all, err := storeInstance.Database.GetAllCredentials()
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, CredentialsResponse{Data: all})

		case http.MethodPost:
			var req CredentialRequest
			if err := controllers.ReadJSON(r, &req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			encrypted, err := storeInstance.Keys.Encrypt(req.Data)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}

			cred := types.Credential{
				Name: req.Name,
				Type: req.Type,
				Data: encrypted,
			}
			if err := storeInstance.Database.CreateCredential(&cred); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, CredentialConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    cred,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

func CredentialSingleHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := credentialID(r)
		if err != nil {
			http.Error(w, "Invalid credential id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			cred, err := storeInstance.Database.GetCredential(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, CredentialConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    cred,
			})

		case http.MethodPut:
			var req CredentialRequest
			if err := controllers.ReadJSON(r, &req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			cred, err := storeInstance.Database.GetCredential(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			if req.Name != "" {
				cred.Name = req.Name
			}
			if req.Type != "" {
				cred.Type = req.Type
			}
			if req.Data != nil {
				encrypted, err := storeInstance.Keys.Encrypt(req.Data)
				if err != nil {
					controllers.WriteErrorResponse(w, err)
					return
				}
				cred.Data = encrypted
			}
			if err := storeInstance.Database.UpdateCredential(cred); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, CredentialConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    cred,
			})

		case http.MethodDelete:
			if err := storeInstance.Database.DeleteCredential(id); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, CredentialConfigResponse{
				Status:  http.StatusOK,
				Success: true,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}
