// Package api exposes the investigation engine's operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"RecallSentinel/internal/classify"
	"RecallSentinel/internal/match"
	"RecallSentinel/internal/model"
	"RecallSentinel/internal/query"
	"RecallSentinel/internal/scheduler"
	"RecallSentinel/internal/store"
)

type Router struct {
	sched    *scheduler.Scheduler
	store    store.Store
	analyzer *match.Analyzer
}

// NewRouter builds the chi handler for the investigation API.
func NewRouter(sched *scheduler.Scheduler, st store.Store, analyzer *match.Analyzer) http.Handler {
	r := &Router{sched: sched, store: st, analyzer: analyzer}
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/investigations", r.wrap(r.handleCreate))
		rt.Get("/investigations", r.wrap(r.handleList))
		rt.Get("/investigations/{id}", r.wrap(r.handleGet))
		rt.Patch("/investigations/{id}", r.wrap(r.handleUpdate))
		rt.Post("/investigations/{id}/cancel", r.wrap(r.handleCancel))
		rt.Post("/investigations/{id}/run", r.wrap(r.handleTriggerNow))
		rt.Get("/investigations/{id}/runs", r.wrap(r.handleRunHistory))
		rt.Get("/runs/{id}/listings", r.wrap(r.handleRunListings))

		rt.Post("/products", r.wrap(r.handleImportProduct))
		rt.Get("/products", r.wrap(r.handleListProducts))
		rt.Get("/products/{id}", r.wrap(r.handleGetProduct))

		// Stateless tool endpoints over the pure core functions.
		rt.Post("/classify", r.wrap(r.handleClassify))
		rt.Post("/queries", r.wrap(r.handleQueries))
		rt.Post("/score", r.wrap(r.handleScore))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, scheduler.ErrValidation):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, scheduler.ErrNotCancellable):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// investigationRequest is the create/update body.
type investigationRequest struct {
	Name           string   `json:"name"`
	ProductIDs     []string `json:"product_ids"`
	MarketplaceIDs []string `json:"marketplace_ids"`
	Recurrence     string   `json:"recurrence"`
	StartAt        string   `json:"start_at,omitempty"` // RFC 3339
	Timezone       string   `json:"timezone,omitempty"`
	CreatedBy      string   `json:"created_by,omitempty"`
}

func (b investigationRequest) params() (scheduler.CreateParams, error) {
	p := scheduler.CreateParams{
		Name:           b.Name,
		ProductIDs:     b.ProductIDs,
		MarketplaceIDs: b.MarketplaceIDs,
		Recurrence:     model.Recurrence(b.Recurrence),
		Timezone:       b.Timezone,
		CreatedBy:      b.CreatedBy,
	}
	if b.StartAt != "" {
		t, err := time.Parse(time.RFC3339, b.StartAt)
		if err != nil {
			return p, errors.Join(scheduler.ErrValidation, err)
		}
		p.StartAt = t
	}
	return p, nil
}

func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var body investigationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(scheduler.ErrValidation, err)
	}
	p, err := body.params()
	if err != nil {
		return err
	}
	inv, err := r.sched.CreateInvestigation(req.Context(), p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, inv)
}

func (r *Router) handleUpdate(w http.ResponseWriter, req *http.Request) error {
	var body investigationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(scheduler.ErrValidation, err)
	}
	p, err := body.params()
	if err != nil {
		return err
	}
	inv, err := r.sched.UpdateInvestigation(req.Context(), chi.URLParam(req, "id"), p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, inv)
}

func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	inv, err := r.store.GetInvestigation(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, inv)
}

func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	invs, err := r.store.ListInvestigations(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, invs)
}

func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	if err := r.sched.CancelInvestigation(req.Context(), chi.URLParam(req, "id")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (r *Router) handleTriggerNow(w http.ResponseWriter, req *http.Request) error {
	started, err := r.sched.TriggerNow(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	if !started {
		// Lost the claim race or not currently Scheduled: per the
		// concurrency contract this is a no-op, not an error.
		return writeJSON(w, http.StatusAccepted, map[string]bool{"started": false})
	}
	return writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

func (r *Router) handleRunHistory(w http.ResponseWriter, req *http.Request) error {
	runs, err := r.sched.RunHistory(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, runs)
}

func (r *Router) handleRunListings(w http.ResponseWriter, req *http.Request) error {
	listings, err := r.store.ListingsForRun(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, listings)
}

// POST /v1/products — import a banned product; its risk level is derived from
// the hazard profile on import.
func (r *Router) handleImportProduct(w http.ResponseWriter, req *http.Request) error {
	var p model.BannedProduct
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		return errors.Join(scheduler.ErrValidation, err)
	}
	if p.Name == "" {
		return errors.Join(scheduler.ErrValidation, errors.New("product name is required"))
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.RiskLevel = classify.RiskOf(&p)
	p.ImportedAt = time.Now()
	if err := r.store.SaveProduct(req.Context(), &p); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, p)
}

func (r *Router) handleListProducts(w http.ResponseWriter, req *http.Request) error {
	products, err := r.store.ListProducts(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, products)
}

func (r *Router) handleGetProduct(w http.ResponseWriter, req *http.Request) error {
	p, err := r.store.GetProduct(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, p)
}

// POST /v1/classify — classify product severity fields.
func (r *Router) handleClassify(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Deaths          int      `json:"deaths"`
		SeriousInjuries int      `json:"serious_injuries"`
		MinorInjuries   int      `json:"minor_injuries"`
		UnitsAffected   int      `json:"units_affected"`
		HazardTags      []string `json:"hazard_tags"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(scheduler.ErrValidation, err)
	}
	level := classify.Risk(classify.Inputs{
		Deaths:          body.Deaths,
		SeriousInjuries: body.SeriousInjuries,
		MinorInjuries:   body.MinorInjuries,
		UnitsAffected:   body.UnitsAffected,
		HazardTags:      body.HazardTags,
	})
	return writeJSON(w, http.StatusOK, map[string]string{"risk_level": string(level)})
}

// POST /v1/queries — build search queries for a product definition.
func (r *Router) handleQueries(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Name         string   `json:"name"`
		Manufacturer string   `json:"manufacturer"`
		ModelNumbers []string `json:"model_numbers"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(scheduler.ErrValidation, err)
	}
	queries := query.Build(&model.BannedProduct{
		Name:         body.Name,
		Manufacturer: body.Manufacturer,
		ModelNumbers: body.ModelNumbers,
	})
	return writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
}

// POST /v1/score — score a listing against a product definition.
func (r *Router) handleScore(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Listing model.Listing       `json:"listing"`
		Product model.BannedProduct `json:"product"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(scheduler.ErrValidation, err)
	}
	res := r.analyzer.Evaluate(&body.Listing, &body.Product)
	return writeJSON(w, http.StatusOK, map[string]any{
		"confidence": res.Confidence,
		"flagged":    res.Flagged,
		"factors":    res.Factors,
	})
}
