package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/store"
)

type JobsHandler struct {
	DB  *store.DB
	Hub *events.Hub
}

var validJobStatus = map[string]bool{
	domain.JobStatusNew:        true,
	domain.JobStatusViewed:     true,
	domain.JobStatusInterested: true,
	domain.JobStatusRejected:   true,
	domain.JobStatusApplied:    true,
	domain.JobStatusArchived:   true,
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	companyID, _ := strconv.ParseInt(q.Get("companyId"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	// empty status means "everything except archived"
	status := q.Get("status")
	if status != "" && !validJobStatus[status] {
		WriteError(w, r, http.StatusBadRequest, "bad_status", "unknown job status: "+status)
		return
	}

	jobs, err := h.DB.ListJobs(r.Context(), store.JobQuery{
		Status:       status,
		CompanyID:    companyID,
		Search:       q.Get("search"),
		LocationType: q.Get("locationType"),
		Sort:         q.Get("sort"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if jobs == nil {
		jobs = []store.JobRow{}
	}
	writeJSON(w, jobs)
}

// ByPath dispatches /jobs/{id} and /jobs/{id}/status.
func (h JobsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	id, tail, ok := pathID(r.URL.Path, "/jobs/")
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "invalid job id")
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case tail == "status" && r.Method == http.MethodPatch:
		h.updateStatus(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h JobsHandler) get(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := h.DB.GetJob(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if job == nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	writeJSON(w, job)
}

type jobStatusPatch struct {
	Status string `json:"status"`
}

func (h JobsHandler) updateStatus(w http.ResponseWriter, r *http.Request, id int64) {
	var req jobStatusPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if !validJobStatus[req.Status] {
		WriteError(w, r, http.StatusBadRequest, "bad_status", "unknown job status: "+req.Status)
		return
	}

	found, err := h.DB.UpdateJobStatus(r.Context(), id, req.Status)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if !found {
		WriteError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}

	h.Hub.Publish("job.updated", map[string]any{"id": id, "status": req.Status})
	writeJSON(w, map[string]any{"ok": true, "id": id, "status": req.Status})
}
