package settings

import (
	"net/http"
	"strconv"

	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/proxy/controllers"
	"github.com/grabarr/grabarr/internal/scheduler"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

type SettingsResponse struct {
	Data []types.SystemSetting `json:"data"`
}

type SettingResponse struct {
	Status  int  `json:"status"`
	Success bool `json:"success"`
}

type TemplatesResponse struct {
	Data []types.ScheduleTemplate `json:"data"`
}

type TemplateConfigResponse struct {
	Status  int                    `json:"status"`
	Success bool                   `json:"success"`
	Data    types.ScheduleTemplate `json:"data,omitempty"`
}

func SettingsHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}
		all, err := storeInstance.Database.GetAllSettings()
		if err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, http.StatusOK, SettingsResponse{Data: all})
	}
}

func SettingSingleHandler(storeInstance *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		var value any
		if err := controllers.ReadJSON(r, &value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := storeInstance.Database.SetSetting(r.PathValue("key"), value); err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		controllers.WriteJSON(w, http.StatusOK, SettingResponse{
			Status:  http.StatusOK,
			Success: true,
		})
	}
}

func TemplatesHandler(storeInstance *store.Store, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			all, err := storeInstance.Database.GetAllScheduleTemplates()
			if err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			controllers.WriteJSON(w, http.StatusOK, TemplatesResponse{Data: all})

		case http.MethodPost:
			var tmpl types.ScheduleTemplate
			if err := controllers.ReadJSON(r, &tmpl); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := storeInstance.Database.CreateScheduleTemplate(&tmpl); err != nil {
				controllers.WriteErrorResponse(w, err)
				return
			}
			if err := sched.Sync(); err != nil {
				logging.L.Error(err).WithMessage("schedule sync failed").Write()
			}
			controllers.WriteJSON(w, http.StatusOK, TemplateConfigResponse{
				Status:  http.StatusOK,
				Success: true,
				Data:    tmpl,
			})

		default:
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
		}
	}
}

func TemplateSingleHandler(storeInstance *store.Store, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Invalid HTTP method", http.StatusBadRequest)
			return
		}

		id, err := strconv.ParseInt(r.PathValue("template"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid template id", http.StatusBadRequest)
			return
		}
		if err := storeInstance.Database.DeleteScheduleTemplate(id); err != nil {
			controllers.WriteErrorResponse(w, err)
			return
		}
		if err := sched.Sync(); err != nil {
			logging.L.Error(err).WithMessage("schedule sync failed").Write()
		}
		controllers.WriteJSON(w, http.StatusOK, SettingResponse{
			Status:  http.StatusOK,
			Success: true,
		})
	}
}
