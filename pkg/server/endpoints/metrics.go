package endpoints

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/audit"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// MetricsJob describes a metrics report and the state of its calculation
type MetricsJob struct {
	ReportID            uint      `json:"report_id"`
	ReportName          string    `json:"report_name"`
	ReportNameGenerated string    `json:"report_name_generated"`
	Projects            []uint    `json:"projects"`
	Status              string    `json:"status"`
	Error               string    `json:"error,omitempty"`
	CreateTime          time.Time `json:"create_time"`
}

type metricsJobRequest struct {
	Projects   []uint `json:"projects"`
	ReportName string `json:"report_name"`
}

// RegisterMetricsEndpoints registers the metrics report endpoints
func RegisterMetricsEndpoints(s *server.Server, api *mux.Router) {
	api.HandleFunc("/metrics-job/", handleListMetricsJobs(s)).Methods("GET")
	api.HandleFunc("/metrics-job/", handleSubmitMetricsJob(s)).Methods("POST")
	api.HandleFunc("/metrics-job/{id}/", handleDeleteMetricsJob(s)).Methods("DELETE")
	api.HandleFunc("/metrics/{id}/", handleGetMetrics(s)).Methods("GET")
}

func handleListMetricsJobs(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.Store.WithContext(r.Context())
		reports, _, err := st.Metrics().List(store.ListOptions{})
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		jobs := make([]MetricsJob, 0, len(reports))
		for _, pm := range reports {
			full, err := st.Metrics().GetFull(pm.ID)
			if err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
			job := MetricsJob{
				ReportID:            full.ID,
				ReportName:          full.ReportName,
				ReportNameGenerated: full.ReportNameGenerated,
				Status:              full.Status,
				Error:               full.Error,
				CreateTime:          full.CreateTime,
				Projects:            make([]uint, 0, len(full.Projects)),
			}
			for _, p := range full.Projects {
				job.Projects = append(job.Projects, p.ID)
			}
			jobs = append(jobs, job)
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"reports": jobs})
	}
}

func handleSubmitMetricsJob(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req metricsJobRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		user := currentUser(r)
		event := audit.MetricsEvent{
			Username:   user.Username,
			ClientIP:   user.ClientIP(),
			Operation:  "submit",
			ProjectIDs: req.Projects,
		}
		if err := requireProjectsAccess(s.Store, r, req.Projects); err != nil {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
			return
		}
		pm, err := s.Reports.Submit(r.Context(), req.Projects, req.ReportName)
		if err != nil {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
			return
		}
		event.ReportID = pm.ID
		event.Success = true
		audit.Log(event)
		respondWithJSON(w, http.StatusOK, map[string]uint{"metrics_job_id": pm.ID})
	}
}

func handleDeleteMetricsJob(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		user := currentUser(r)
		event := audit.MetricsEvent{Username: user.Username, ClientIP: user.ClientIP(), Operation: "delete", ReportID: id}
		if err := s.Reports.Delete(r.Context(), id); err != nil {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
			return
		}
		event.Success = true
		audit.Log(event)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetMetrics(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		pm, report, err := s.Reports.Load(r.Context(), id)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"id":      pm.ID,
			"results": report,
		})
	}
}
