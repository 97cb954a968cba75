package history

import (
	"net/http"
	"strconv"

	"github.com/grabarr/grabarr/internal/proxy/controllers"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

type HistoryResponse struct {
	Data []types.JobHistory `json:"data"`
}

// JobHistoryHandler lists history rows for one job, newest first.
func JobHistoryHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		jobID, err := strconv.ParseInt(r.PathValue("job"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid job id", http.StatusBadRequest)
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
		}

		entries, err := storeInstance.Database.GetHistory(jobID, limit)
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, http.StatusOK, HistoryResponse{Data: entries})
	}
}
