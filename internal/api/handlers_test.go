package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adtarget/internal/analytics"
	"github.com/patrickwarner/adtarget/internal/config"
	"github.com/patrickwarner/adtarget/internal/customer"
	"github.com/patrickwarner/adtarget/internal/db"
	"github.com/patrickwarner/adtarget/internal/logic/selectors"
	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/observability"
	"github.com/patrickwarner/adtarget/internal/ratelimit"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

// newTestServer wires a server over an in-memory store, a miniredis-backed
// feedback store and mock analytics. Postgres is intentionally nil: the
// handlers must fall back to the in-memory source of truth.
func newTestServer(t *testing.T) (*Server, *models.InMemoryContentDataStore, *analytics.MockAnalytics, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	redisStore := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(redisStore.Close)

	logger := zaptest.NewLogger(t)
	dataStore := models.NewInMemoryContentDataStore()
	factory := targeting.NewFactory(
		&customer.StaticProfiles{Profiles: map[string]customer.Profile{
			"cust-parent": {AgeRange: customer.Age31To40, IsParent: true},
		}},
		&customer.StaticSpend{},
		&customer.StaticBenefits{},
	)
	evaluator := targeting.NewEvaluator(8, time.Second, logger)
	selector := selectors.NewRuleBasedSelector(dataStore, evaluator, nil, logger)
	mockAnalytics := analytics.NewMockAnalytics()

	server := NewServer(
		logger,
		redisStore,
		nil,
		mockAnalytics,
		nil,
		selector,
		dataStore,
		factory,
		&observability.NoOpRegistry{},
		config.Config{DefaultCTR: 1.0, CTRWeight: 100},
	)
	return server, dataStore, mockAnalytics, mr
}

// testRouter registers the handlers under their production routes so mux path
// variables resolve.
func testRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ad", s.SelectAdHandler).Methods("POST")
	r.HandleFunc("/impression", s.ImpressionHandler).Methods("GET")
	r.HandleFunc("/click", s.ClickHandler).Methods("GET")
	r.HandleFunc("/api/content", s.ListContent).Methods("GET")
	r.HandleFunc("/api/content", s.CreateContent).Methods("POST")
	r.HandleFunc("/api/content/{id}", s.GetContent).Methods("GET")
	r.HandleFunc("/api/content/{id}", s.UpdateContent).Methods("PUT")
	r.HandleFunc("/api/content/{id}", s.DeleteContent).Methods("DELETE")
	r.HandleFunc("/api/content/{id}/targeting_groups", s.DeleteContentGroups).Methods("DELETE")
	r.HandleFunc("/api/targeting_groups", s.ListTargetingGroups).Methods("GET")
	r.HandleFunc("/api/targeting_groups", s.CreateTargetingGroup).Methods("POST")
	r.HandleFunc("/api/targeting_groups/{id}", s.GetTargetingGroup).Methods("GET")
	r.HandleFunc("/api/targeting_groups/{id}", s.DeleteTargetingGroup).Methods("DELETE")
	r.HandleFunc("/api/targeting_groups/{id}/ctr", s.UpdateTargetingGroupCTR).Methods("PUT")
	return r
}

func seedCatalog(t *testing.T, server *Server, store *models.InMemoryContentDataStore) (models.AdvertisementContent, models.TargetingGroup) {
	t.Helper()
	content, err := store.CreateContent(models.AdvertisementContent{
		ID:                "c-1",
		MarketplaceID:     "mk-us",
		RenderableContent: "<div>sale</div>",
	})
	if err != nil {
		t.Fatalf("CreateContent: %v", err)
	}
	specs := []targeting.PredicateSpec{{Type: targeting.KindParent}}
	preds, err := server.Factory.BuildAll(specs)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	group, err := store.CreateGroup(models.TargetingGroup{
		ID:             "tg-1",
		ContentID:      content.ID,
		PredicateSpecs: specs,
		Predicates:     preds,
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return content, group
}

func TestSelectAdHandlerFills(t *testing.T) {
	server, store, mockAnalytics, _ := newTestServer(t)
	seedCatalog(t, server, store)

	body := bytes.NewBufferString(`{"customer_id":"cust-parent","marketplace_id":"mk-us"}`)
	req := httptest.NewRequest("POST", "/ad", body)
	w := httptest.NewRecorder()

	testRouter(server).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp AdResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ContentID != "c-1" {
		t.Errorf("content_id = %q, want c-1", resp.ContentID)
	}
	if resp.RenderableContent != "<div>sale</div>" {
		t.Errorf("renderable_content = %q", resp.RenderableContent)
	}
	if resp.ID == "" {
		t.Error("response id is empty")
	}
	if resp.TargetingGroupID != "tg-1" {
		t.Errorf("targeting_group_id = %q, want tg-1", resp.TargetingGroupID)
	}
	if resp.ImpressionURL != "/impression?tg=tg-1" {
		t.Errorf("impression_url = %q", resp.ImpressionURL)
	}
	if resp.ClickURL != "/click?tg=tg-1" {
		t.Errorf("click_url = %q", resp.ClickURL)
	}

	if len(mockAnalytics.Decisions) != 1 {
		t.Fatalf("recorded %d decisions, want 1", len(mockAnalytics.Decisions))
	}
	d := mockAnalytics.Decisions[0]
	if !d.Filled || !d.Recognized || d.MarketplaceID != "mk-us" {
		t.Errorf("decision event = %+v", d)
	}
}

func TestSelectAdHandlerUnfillableIsStillOK(t *testing.T) {
	server, store, mockAnalytics, _ := newTestServer(t)
	seedCatalog(t, server, store)

	// Anonymous customer fails the parent predicate; no 5xx, just empty.
	body := bytes.NewBufferString(`{"customer_id":"","marketplace_id":"mk-us"}`)
	req := httptest.NewRequest("POST", "/ad", body)
	w := httptest.NewRecorder()

	testRouter(server).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp AdResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ContentID != "" || resp.RenderableContent != "" {
		t.Errorf("unfillable response carries content: %+v", resp)
	}
	if resp.ID == "" {
		t.Error("empty advertisement still needs a response id")
	}

	if len(mockAnalytics.Decisions) != 1 || mockAnalytics.Decisions[0].Filled {
		t.Errorf("decision events = %+v", mockAnalytics.Decisions)
	}
}

func TestSelectAdHandlerBadJSON(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/ad", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	testRouter(server).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSelectAdHandlerRateLimited(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)
	server.Limiter = ratelimit.NewMarketplaceLimiter(
		ratelimit.Config{Capacity: 1, RefillRate: 1, Enabled: true}, nil)
	router := testRouter(server)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/ad",
		bytes.NewBufferString(`{"marketplace_id":"mk-us"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/ad",
		bytes.NewBufferString(`{"marketplace_id":"mk-us"}`)))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w.Code)
	}
}

func TestImpressionHandler(t *testing.T) {
	server, store, mockAnalytics, mr := newTestServer(t)
	seedCatalog(t, server, store)

	req := httptest.NewRequest("GET", "/impression?tg=tg-1", nil)
	w := httptest.NewRecorder()
	testRouter(server).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q, want image/gif", ct)
	}
	if got, err := mr.Get("ctr:group:tg-1:imp"); err != nil || got != "1" {
		t.Errorf("impression counter = %q (err %v), want 1", got, err)
	}
	if len(mockAnalytics.Feedback) != 1 || mockAnalytics.Feedback[0] != "impression:tg-1" {
		t.Errorf("feedback events = %v", mockAnalytics.Feedback)
	}
}

func TestImpressionHandlerValidation(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)
	router := testRouter(server)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/impression", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing tg: status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/impression?tg=tg-unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown tg: status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tg-unknown") {
		t.Errorf("404 body does not name the group: %q", w.Body.String())
	}
}

func TestClickHandler(t *testing.T) {
	server, store, mockAnalytics, mr := newTestServer(t)
	seedCatalog(t, server, store)

	req := httptest.NewRequest("GET", "/click?tg=tg-1", nil)
	w := httptest.NewRecorder()
	testRouter(server).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got, err := mr.Get("ctr:group:tg-1:click"); err != nil || got != "1" {
		t.Errorf("click counter = %q (err %v), want 1", got, err)
	}
	if len(mockAnalytics.Feedback) != 1 || mockAnalytics.Feedback[0] != "click:tg-1" {
		t.Errorf("feedback events = %v", mockAnalytics.Feedback)
	}
}

func TestContentCRUD(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	router := testRouter(server)

	// Create.
	body := bytes.NewBufferString(`{"marketplace_id":"mk-us","renderable_content":"<p>hi</p>"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/content", body))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", w.Code, w.Body.String())
	}
	var created models.AdvertisementContent
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created content: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created content has no id")
	}

	// Get it back.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/content/"+created.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}

	// List filtered by marketplace.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/content?marketplace=mk-us", nil))
	var listed []models.AdvertisementContent
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed %d items, want 1", len(listed))
	}

	// Delete, then 404 on the second attempt.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/content/"+created.ID, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/content/"+created.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestCreateContentRequiresMarketplace(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"renderable_content":"<p>hi</p>"}`)
	testRouter(server).ServeHTTP(w, httptest.NewRequest("POST", "/api/content", body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateContentHandler(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)
	router := testRouter(server)

	body := bytes.NewBufferString(`{"marketplace_id":"mk-de","renderable_content":"<p>neu</p>"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/content/c-1", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated models.AdvertisementContent
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated content: %v", err)
	}
	if updated.ID != "c-1" || updated.MarketplaceID != "mk-de" || updated.RenderableContent != "<p>neu</p>" {
		t.Errorf("updated content = %+v", updated)
	}

	// The store reflects the move between marketplaces.
	if got := store.ListContentByMarketplace("mk-de"); len(got) != 1 {
		t.Errorf("mk-de has %d contents, want 1", len(got))
	}
	if got := store.ListContentByMarketplace("mk-us"); len(got) != 0 {
		t.Errorf("mk-us has %d contents, want 0", len(got))
	}
}

func TestUpdateContentHandlerValidation(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)
	router := testRouter(server)

	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"renderable_content":"<p>hi</p>"}`)
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/content/c-1", body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing marketplace: status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	body = bytes.NewBufferString(`{"marketplace_id":"mk-us","renderable_content":"<p>hi</p>"}`)
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/content/c-missing", body))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown content: status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "c-missing") {
		t.Errorf("404 body does not name the content: %q", w.Body.String())
	}
}

func TestDeleteContentGroupsHandler(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)
	router := testRouter(server)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/content/c-1/targeting_groups", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if groups := store.GroupsForContent("c-1"); len(groups) != 0 {
		t.Errorf("content still has %d groups", len(groups))
	}
	// The content itself survives.
	if _, err := store.GetContent("c-1"); err != nil {
		t.Errorf("content was deleted along with its groups: %v", err)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/content/c-gone/targeting_groups", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown content: status = %d, want 404", w.Code)
	}
}

func TestCreateTargetingGroup(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)
	router := testRouter(server)

	body := bytes.NewBufferString(`{
		"content_id": "c-1",
		"predicates": [
			{"type": "categorySpendValue", "attributes": {"category": "books", "comparison": "GT", "target": "5000"}}
		]
	}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/targeting_groups", body))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var group models.TargetingGroup
	if err := json.Unmarshal(w.Body.Bytes(), &group); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if group.ID == "" {
		t.Error("created group has no id")
	}
	if group.ClickThroughRate != models.DefaultClickThroughRate {
		t.Errorf("CTR = %v, want default %v", group.ClickThroughRate, models.DefaultClickThroughRate)
	}
}

func TestCreateTargetingGroupInvalidPredicate(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)

	body := bytes.NewBufferString(`{
		"content_id": "c-1",
		"predicates": [{"type": "categorySpendValue", "attributes": {"category": "books", "comparison": "GTE", "target": "1"}}]
	}`)
	w := httptest.NewRecorder()
	testRouter(server).ServeHTTP(w, httptest.NewRequest("POST", "/api/targeting_groups", body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "comparison") || !strings.Contains(w.Body.String(), "GTE") {
		t.Errorf("400 body does not name the bad field: %q", w.Body.String())
	}
}

func TestCreateTargetingGroupUnknownContent(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"content_id": "missing", "predicates": []}`)
	w := httptest.NewRecorder()
	testRouter(server).ServeHTTP(w, httptest.NewRequest("POST", "/api/targeting_groups", body))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestUpdateTargetingGroupCTR(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)
	router := testRouter(server)

	body := bytes.NewBufferString(`{"click_through_rate": 0.42}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/targeting_groups/tg-1/ctr", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var group models.TargetingGroup
	if err := json.Unmarshal(w.Body.Bytes(), &group); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if group.ClickThroughRate != 0.42 {
		t.Errorf("CTR = %v, want 0.42", group.ClickThroughRate)
	}

	// Negative override is rejected.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/targeting_groups/tg-1/ctr",
		bytes.NewBufferString(`{"click_through_rate": -0.1}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative ctr: status = %d, want 400", w.Code)
	}

	// Unknown group yields a 404 naming the id.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/targeting_groups/tg-nope/ctr",
		bytes.NewBufferString(`{"click_through_rate": 0.5}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown group: status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tg-nope") {
		t.Errorf("404 body does not name the group: %q", w.Body.String())
	}
}

func TestUpdateCTRFromFeedback(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)

	// 1000 impressions, 10 clicks with prior weight 100 and default 1.0:
	// (10 + 1.0*100) / (1000 + 100) = 0.1
	for i := 0; i < 1000; i++ {
		if err := server.Store.IncrementImpression("tg-1"); err != nil {
			t.Fatalf("IncrementImpression: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		if err := server.Store.IncrementClick("tg-1"); err != nil {
			t.Fatalf("IncrementClick: %v", err)
		}
	}

	server.UpdateCTR()

	group, err := store.GetGroup("tg-1")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got := group.ClickThroughRate; got != 0.1 {
		t.Errorf("smoothed CTR = %v, want 0.1", got)
	}
}

func TestUpdateCTRSkipsGroupsWithoutFeedback(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	seedCatalog(t, server, store)

	server.UpdateCTR()

	group, err := store.GetGroup("tg-1")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if group.ClickThroughRate != models.DefaultClickThroughRate {
		t.Errorf("CTR = %v, want untouched default", group.ClickThroughRate)
	}
}
