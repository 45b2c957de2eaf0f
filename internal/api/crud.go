package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/openbidder/internal/interceptors"
	"github.com/patrickwarner/openbidder/internal/models"
)

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ===== Exchanges =====

type exchangeView struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
}

func (s *Server) ListExchanges(w http.ResponseWriter, r *http.Request) {
	out := []exchangeView{}
	for _, ex := range s.Exchanges.All() {
		out = append(out, exchangeView{Name: ex.Name(), Protocol: ex.Protocol().String()})
	}
	writeJSON(w, http.StatusOK, out)
}

// ===== Line items =====

func (s *Server) ListLineItems(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.Catalog.GetAllLineItems())
}

func (s *Server) CreateLineItem(w http.ResponseWriter, r *http.Request) {
	if s.PG == nil {
		http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
		return
	}
	var li models.LineItem
	if err := json.NewDecoder(r.Body).Decode(&li); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if li.CPM <= 0 {
		http.Error(w, "cpm must be positive", http.StatusBadRequest)
		return
	}
	if err := s.PG.InsertLineItem(r.Context(), &li); err != nil {
		s.Logger.Error("insert line item to postgres", zap.Error(err))
		http.Error(w, "failed to persist line item", http.StatusInternalServerError)
		return
	}
	s.notifyUpdate(r.Context())
	writeJSON(w, http.StatusCreated, li)
}

// ===== Creatives =====

func (s *Server) ListCreatives(w http.ResponseWriter, r *http.Request) {
	if s.Source == nil {
		http.Error(w, "catalog source unavailable", http.StatusServiceUnavailable)
		return
	}
	cs, err := s.Source.LoadCreatives(r.Context())
	if err != nil {
		s.Logger.Error("load creatives", zap.Error(err))
		http.Error(w, "failed to load creatives", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) CreateCreative(w http.ResponseWriter, r *http.Request) {
	if s.PG == nil {
		http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
		return
	}
	var c models.Creative
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if c.Width <= 0 || c.Height <= 0 {
		http.Error(w, "width and height required", http.StatusBadRequest)
		return
	}
	if s.Catalog.GetLineItem(c.LineItemID) == nil {
		http.Error(w, "unknown line item", http.StatusBadRequest)
		return
	}
	if interceptors.CreativeMarkup(c) == "" {
		http.Error(w, "creative has no markup", http.StatusBadRequest)
		return
	}
	if err := s.PG.InsertCreative(r.Context(), &c); err != nil {
		s.Logger.Error("insert creative to postgres", zap.Error(err))
		http.Error(w, "failed to persist creative", http.StatusInternalServerError)
		return
	}
	s.notifyUpdate(r.Context())
	writeJSON(w, http.StatusCreated, c)
}

// notifyUpdate reloads the local catalogue and tells the other instances to
// do the same.
func (s *Server) notifyUpdate(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		s.Logger.Error("reload after update", zap.Error(err))
	}
	if s.Store == nil {
		s.Logger.Warn("redis store not available, skipping update notification")
		return
	}
	if err := s.Store.PublishReload(ctx); err != nil {
		s.Logger.Error("failed to publish update message", zap.Error(err))
	}
}
