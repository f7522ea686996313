package httpapi

// ScrapeStatus is the engine-wide run flag the dashboard polls. One scrape
// batch at a time; the session rows carry the per-run detail.
type ScrapeStatus struct {
	LastRunAt     string `json:"last_run_at"`
	LastOkAt      string `json:"last_ok_at"`
	LastError     string `json:"last_error"`
	LastAdded     int    `json:"last_added"`
	LastSessionID string `json:"last_session_id"`
	Running       bool   `json:"running"`
}
