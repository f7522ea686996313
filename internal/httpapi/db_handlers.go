package httpapi

import (
	"net/http"

	"jobscout-engine/internal/store"
)

type DBHandler struct {
	DB *store.DB
}

// Checkpoint flushes the sqlite WAL so backup tools see a single file.
// Localhost only; backups run on the same box.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if !localhostOnly(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if _, err := h.DB.Pool.ExecContext(r.Context(), `PRAGMA wal_checkpoint(FULL);`); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
