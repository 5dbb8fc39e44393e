package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ===== Advertisement content =====

func (s *Server) ListContent(w http.ResponseWriter, r *http.Request) {
	if marketplace := r.URL.Query().Get("marketplace"); marketplace != "" {
		writeJSON(w, s.DataStore.ListContentByMarketplace(marketplace))
		return
	}
	writeJSON(w, s.DataStore.ListContent())
}

func (s *Server) GetContent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	content, err := s.DataStore.GetContent(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, content)
}

func (s *Server) CreateContent(w http.ResponseWriter, r *http.Request) {
	var content models.AdvertisementContent
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if content.MarketplaceID == "" {
		http.Error(w, "marketplace_id required", http.StatusBadRequest)
		return
	}

	content, err := s.DataStore.CreateContent(content)
	if err != nil {
		s.Logger.Error("create content", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Persist to PostgreSQL; the in-memory store remains the source of truth.
	if s.PG != nil {
		if err := s.PG.InsertContent(content); err != nil {
			s.Logger.Error("persist content", zap.Error(err), zap.String("content_id", content.ID))
		}
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, content)
}

// UpdateContent overwrites an existing content item's marketplace and
// renderable payload.
func (s *Server) UpdateContent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var content models.AdvertisementContent
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if content.MarketplaceID == "" {
		http.Error(w, "marketplace_id required", http.StatusBadRequest)
		return
	}
	content.ID = id

	content, err := s.DataStore.UpdateContent(content)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Logger.Error("update content", zap.Error(err), zap.String("content_id", id))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.PG != nil {
		if err := s.PG.UpdateContent(content); err != nil {
			s.Logger.Error("persist content update", zap.Error(err), zap.String("content_id", id))
		}
	}

	writeJSON(w, content)
}

// DeleteContent removes a content item and cascades to its targeting groups.
func (s *Server) DeleteContent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.DataStore.DeleteContent(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Logger.Error("delete content", zap.Error(err), zap.String("content_id", id))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.PG != nil {
		if err := s.PG.DeleteContent(id); err != nil {
			s.Logger.Error("delete content from postgres", zap.Error(err), zap.String("content_id", id))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteContentGroups removes every targeting group attached to a content
// item, leaving the content itself in place.
func (s *Server) DeleteContentGroups(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.DataStore.DeleteGroupsForContent(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Logger.Error("delete targeting groups for content", zap.Error(err), zap.String("content_id", id))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.PG != nil {
		if err := s.PG.DeleteTargetingGroupsByContent(id); err != nil {
			s.Logger.Error("delete targeting groups from postgres", zap.Error(err), zap.String("content_id", id))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// ===== Targeting groups =====

func (s *Server) ListTargetingGroups(w http.ResponseWriter, r *http.Request) {
	if contentID := r.URL.Query().Get("content"); contentID != "" {
		writeJSON(w, s.DataStore.GroupsForContent(contentID))
		return
	}
	writeJSON(w, s.DataStore.ListGroups())
}

func (s *Server) GetTargetingGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	group, err := s.DataStore.GetGroup(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, group)
}

// CreateTargetingGroup validates the predicate specs through the factory
// before accepting the group. A malformed predicate yields a 400 naming the
// offending field and value.
func (s *Server) CreateTargetingGroup(w http.ResponseWriter, r *http.Request) {
	var group models.TargetingGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if group.ContentID == "" {
		http.Error(w, "content_id required", http.StatusBadRequest)
		return
	}

	preds, err := s.Factory.BuildAll(group.PredicateSpecs)
	if err != nil {
		var invalid *targeting.InvalidPredicateError
		if errors.As(err, &invalid) {
			http.Error(w, invalid.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	group.Predicates = preds

	group, err = s.DataStore.CreateGroup(group)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Logger.Error("create targeting group", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.PG != nil {
		if err := s.PG.InsertTargetingGroup(group); err != nil {
			s.Logger.Error("persist targeting group", zap.Error(err), zap.String("group_id", group.ID))
		}
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, group)
}

func (s *Server) DeleteTargetingGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.DataStore.DeleteGroup(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Logger.Error("delete targeting group", zap.Error(err), zap.String("group_id", id))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.PG != nil {
		if err := s.PG.DeleteTargetingGroup(id); err != nil {
			s.Logger.Error("delete targeting group from postgres", zap.Error(err), zap.String("group_id", id))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateCTRRequest is the body of PUT /api/targeting_groups/{id}/ctr.
type UpdateCTRRequest struct {
	ClickThroughRate float64 `json:"click_through_rate"`
}

// UpdateTargetingGroupCTR overrides the click-through rate of one group.
func (s *Server) UpdateTargetingGroupCTR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req UpdateCTRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ClickThroughRate < 0 {
		http.Error(w, "click_through_rate must be non-negative", http.StatusBadRequest)
		return
	}

	if err := s.DataStore.UpdateClickThroughRate(id, req.ClickThroughRate); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Logger.Error("update click-through rate", zap.Error(err), zap.String("group_id", id))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.PG != nil {
		if err := s.PG.UpdateClickThroughRate(id, req.ClickThroughRate); err != nil {
			s.Logger.Error("persist click-through rate", zap.Error(err), zap.String("group_id", id))
		}
	}

	group, err := s.DataStore.GetGroup(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, group)
}
