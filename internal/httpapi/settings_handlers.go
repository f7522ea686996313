package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/store"
)

type SettingsHandler struct {
	DB *store.DB
}

// settableKeys are the runtime overrides the dashboard may write. Everything
// else lives in config.yml and goes through PUT /config.
var settableKeys = map[string]bool{
	scrape.SettingFilterCountry:       true,
	scrape.SettingFilterCity:          true,
	scrape.SettingFilterTitleKeywords: true,
	scrape.SettingMaxParallelScrapes:  true,
}

func (h SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	all, err := h.DB.AllSettings(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	out := map[string]string{}
	for key := range settableKeys {
		out[key] = all[key]
	}
	writeJSON(w, out)
}

func (h SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var incoming map[string]string
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	for key, value := range incoming {
		if !settableKeys[key] {
			WriteError(w, r, http.StatusBadRequest, "bad_key", "unknown setting: "+key)
			return
		}
		if msg := validateSetting(key, value); msg != "" {
			WriteError(w, r, http.StatusBadRequest, "bad_value", key+": "+msg)
			return
		}
	}

	for key, value := range incoming {
		if err := h.DB.SetSetting(r.Context(), key, strings.TrimSpace(value)); err != nil {
			WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
			return
		}
	}

	h.Get(w, r)
}

func validateSetting(key, value string) string {
	value = strings.TrimSpace(value)
	switch key {
	case scrape.SettingFilterTitleKeywords:
		if value == "" {
			return ""
		}
		var kw []string
		if err := json.Unmarshal([]byte(value), &kw); err != nil {
			return "must be a JSON string array"
		}
	case scrape.SettingMaxParallelScrapes:
		if value == "" {
			return ""
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 10 {
			return "must be an integer between 1 and 10"
		}
	}
	return ""
}
