package actions

import (
	"net/http"
	"strconv"

	"github.com/grabarr/grabarr/internal/proxy/controllers"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

type ActionsResponse struct {
	Data []types.Action `json:"data"`
}

type ActionConfigResponse struct {
	Status  int          `json:"status"`
	Success bool         `json:"success"`
	Data    types.Action `json:"data,omitempty"`
}

type BindingsResponse struct {
	Data []types.JobAction `json:"data"`
}

type BindingConfigResponse struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Data    types.JobAction `json:"data,omitempty"`
}

func ActionsHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			all, err := storeInstance.Database.GetAllActions()
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, ActionsResponse{Data: all})

		case http.MethodPost:
			var action types.Action
			if err := controllers.ReadJSON(r, &action); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := storeInstance.Database.CreateAction(&action); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, ActionConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    action,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

func ActionSingleHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("action"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid action id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			action, err := storeInstance.Database.GetAction(id)
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, ActionConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    action,
			})

		case http.MethodPut:
			var action types.Action
			if err := controllers.ReadJSON(r, &action); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			action.ID = id
			if err := storeInstance.Database.UpdateAction(action); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, ActionConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    action,
			})

		case http.MethodDelete:
			if err := storeInstance.Database.DeleteAction(id); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, ActionConfigResponse{
				Status:  http.StatusOK,
				Success: true,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

// JobBindingsHandler lists or creates trigger bindings for one job. Listing
// walks every trigger so the caller sees the whole pipeline at once.
func JobBindingsHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := strconv.ParseInt(r.PathValue("job"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid job id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			var all []types.JobAction
			for trigger := range types.ValidTriggers {
				bindings, err := storeInstance.Database.GetJobActions(jobID, trigger)
				if err != nil {
					controllers.WriteErrorResponse(w, err)
					return
				}
				all = append(all, bindings...)
			}
			controllers.WriteJSON(w, http.StatusOK, BindingsResponse{Data: all})

		case http.MethodPost:
			var binding types.JobAction
			if err := controllers.ReadJSON(r, &binding); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			binding.JobID = jobID
			if err := storeInstance.Database.CreateJobAction(&binding); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, BindingConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    binding,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

func JobBindingSingleHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		id, err := strconv.ParseInt(r.PathValue("binding"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid binding id", http.StatusBadRequest)
			return
		}
		if err := storeInstance.Database.DeleteJobAction(id); err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, http.StatusOK, BindingConfigResponse{
			Status:  http.StatusOK,
			Success: true,
		})
	}
}
