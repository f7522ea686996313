package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/store"
)

type CompaniesHandler struct {
	DB  *store.DB
	Hub *events.Hub
}

func (h CompaniesHandler) List(w http.ResponseWriter, r *http.Request) {
	companies, err := h.DB.ListCompanies(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if companies == nil {
		companies = []domain.Company{}
	}
	writeJSON(w, companies)
}

type companyCreateReq struct {
	Name       string `json:"name"`
	CareerURL  string `json:"careerUrl"`
	BoardToken string `json:"boardToken"`
	Active     *bool  `json:"active"`
}

func (h CompaniesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req companyCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.CareerURL = strings.TrimSpace(req.CareerURL)
	if req.Name == "" || req.CareerURL == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "name and careerUrl are required")
		return
	}
	if u, err := url.Parse(req.CareerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		WriteError(w, r, http.StatusBadRequest, "bad_url", "careerUrl must be an absolute http(s) URL")
		return
	}

	existing, err := h.DB.GetCompanyByName(r.Context(), req.Name)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if existing != nil {
		WriteError(w, r, http.StatusConflict, "duplicate", "company already exists")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	company := &domain.Company{
		Name:       req.Name,
		CareerURL:  req.CareerURL,
		Platform:   string(scrape.DetectPlatform(req.CareerURL)),
		BoardToken: strings.TrimSpace(req.BoardToken),
		Active:     active,
	}
	if err := h.DB.CreateCompany(r.Context(), company); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	h.Hub.Publish("company.created", map[string]any{"id": company.ID, "name": company.Name})
	WriteJSON(w, http.StatusCreated, company)
}

// ByPath dispatches /companies/{id}.
func (h CompaniesHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	id, tail, ok := pathID(r.URL.Path, "/companies/")
	if !ok || tail != "" {
		WriteError(w, r, http.StatusBadRequest, "bad_id", "invalid company id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPatch:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h CompaniesHandler) get(w http.ResponseWriter, r *http.Request, id int64) {
	company, err := h.DB.GetCompany(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if company == nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "company not found")
		return
	}
	writeJSON(w, company)
}

type companyPatchReq struct {
	BoardToken *string `json:"boardToken"`
	Active     *bool   `json:"active"`
}

func (h CompaniesHandler) update(w http.ResponseWriter, r *http.Request, id int64) {
	var req companyPatchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	company, err := h.DB.GetCompany(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if company == nil {
		WriteError(w, r, http.StatusNotFound, "not_found", "company not found")
		return
	}

	err = h.DB.UpdateCompany(r.Context(), id, domain.CompanyUpdate{
		BoardToken: req.BoardToken,
		Active:     req.Active,
	})
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	company, err = h.DB.GetCompany(r.Context(), id)
	if err != nil || company == nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", "reload after update failed")
		return
	}
	writeJSON(w, company)
}

func (h CompaniesHandler) delete(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.DB.DeleteCompany(r.Context(), id); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	h.Hub.Publish("company.deleted", map[string]any{"id": id})
	writeJSON(w, map[string]any{"ok": true, "id": id})
}
