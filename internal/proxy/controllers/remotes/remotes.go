package remotes

import (
	"net/http"
	"strconv"

	"github.com/grabarr/grabarr/internal/proxy/controllers"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
	"github.com/grabarr/grabarr/internal/utils"
)

type RemotesResponse struct {
	Data   []types.Remote `json:"data"`
	Digest string         `json:"digest"`
}

type RemoteConfigResponse struct {
	Status  int          `json:"status"`
	Success bool         `json:"success"`
	Data    types.Remote `json:"data,omitempty"`
}

func remoteID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("remote"), 10, 64)
}

func RemotesHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			allRemotes, err := storeInstance.Database.GetAllRemotes()
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			digest, err := utils.CalculateDigest(allRemotes)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, RemotesResponse{
				Data:   allRemotes,
				Digest: digest,
			})

		case http.MethodPost:
			var remote types.Remote
			if err := controllers.ReadJSON(r, &remote); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := storeInstance.Database.CreateRemote(&remote); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, RemoteConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    remote,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

func RemoteSingleHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := remoteID(r)
		if err != nil {
			http.Error(w, "Invalid remote id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			remote, err := storeInstance.Database.GetRemote(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, RemoteConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    remote,
			})

		case http.MethodPut:
			var remote types.Remote
			if err := controllers.ReadJSON(r, &remote); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			remote.ID = id
			if err := storeInstance.Database.UpdateRemote(remote); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, RemoteConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    remote,
			})

		case http.MethodDelete:
			if err := storeInstance.Database.DeleteRemote(id); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, RemoteConfigResponse{
				Status:  http.StatusOK,
				Success: true,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}
