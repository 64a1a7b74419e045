package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/uniride/internal/config"
	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/storage"
)

func testServer() (*Server, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.ServerConfig{ChatHistoryLimit: 100}
	return NewServer(cfg, store, logger), store
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestOfferThenJoinThenApprove(t *testing.T) {
	s, _ := testServer()

	rec := postJSON(t, s, "/api/v1/rides/offer", map[string]any{
		"owner_id": "alice", "from": "Gulshan", "to": "Campus", "ride_type": "bike",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("offer status = %d body = %s", rec.Code, rec.Body)
	}
	var ride models.Ride
	if err := json.Unmarshal(rec.Body.Bytes(), &ride); err != nil {
		t.Fatalf("decode ride: %v", err)
	}
	if ride.ID == 0 || ride.CurrentCapacity != 1 {
		t.Fatalf("unexpected ride %+v", ride)
	}

	joinPath := fmt.Sprintf("/api/v1/rides/%d/join", ride.ID)
	if rec := postJSON(t, s, joinPath, map[string]any{"user_id": "bob"}); rec.Code != http.StatusAccepted {
		t.Fatalf("join status = %d body = %s", rec.Code, rec.Body)
	}

	respondPath := fmt.Sprintf("/api/v1/rides/%d/respond", ride.ID)
	rec = postJSON(t, s, respondPath, map[string]any{"user_id": "bob", "accept": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("respond status = %d body = %s", rec.Code, rec.Body)
	}
	var updated models.Ride
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.CurrentCapacity != 2 || updated.Status != models.RideFull {
		t.Fatalf("bike ride should be full after one approval, got %+v", updated)
	}
}

func TestErrorTaxonomyMapsToStatusCodes(t *testing.T) {
	s, _ := testServer()

	// validation -> 400
	rec := postJSON(t, s, "/api/v1/rides/offer", map[string]any{
		"owner_id": "alice", "from": "A", "to": "A", "ride_type": "bike",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("same from/to status = %d", rec.Code)
	}

	// not found -> 404
	rec = postJSON(t, s, "/api/v1/rides/999/join", map[string]any{"user_id": "bob"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing ride status = %d body = %s", rec.Code, rec.Body)
	}

	// conflict -> 409 with reason code
	offer := postJSON(t, s, "/api/v1/rides/offer", map[string]any{
		"owner_id": "alice", "from": "Gulshan", "to": "Campus", "ride_type": "bike",
	})
	var ride models.Ride
	if err := json.Unmarshal(offer.Body.Bytes(), &ride); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec = postJSON(t, s, fmt.Sprintf("/api/v1/rides/%d/join", ride.ID), map[string]any{"user_id": "alice"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("owner self-join status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["reason"] != models.ReasonRideNotJoinable {
		t.Fatalf("reason = %q", body["reason"])
	}
}

func TestSearchLeadIfNoneCreatesAggregationRide(t *testing.T) {
	s, store := testServer()
	if err := store.SaveUser(models.User{ID: "carol", Name: "Carol", Email: "carol@campus.edu"}); err != nil {
		t.Fatal(err)
	}

	rec := postJSON(t, s, "/api/v1/rides/search", map[string]any{
		"user_id": "carol", "from": "Gulshan", "to": "Campus",
		"ride_type": "rickshaw", "lead_if_none": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("search status = %d body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Created models.Ride `json:"created"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Created.OwnerID != "" || resp.Created.CurrentCapacity != 1 {
		t.Fatalf("rickshaw aggregation should be leaderless with the requester seated, got %+v", resp.Created)
	}
	if s.Chat.Lead(resp.Created.ID) != "carol" {
		t.Fatalf("requester should be the chat lead")
	}
}

func TestChatRoutesThroughLead(t *testing.T) {
	s, _ := testServer()
	offer := postJSON(t, s, "/api/v1/rides/offer", map[string]any{
		"owner_id": "alice", "from": "Gulshan", "to": "Campus", "ride_type": "carpool",
	})
	var ride models.Ride
	if err := json.Unmarshal(offer.Body.Bytes(), &ride); err != nil {
		t.Fatalf("decode: %v", err)
	}

	chatPath := fmt.Sprintf("/api/v1/rides/%d/chat", ride.ID)
	rec := postJSON(t, s, chatPath, map[string]any{"sender": "bob", "recipient": "alice", "text": "where do we meet?"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("spoke->lead status = %d body = %s", rec.Code, rec.Body)
	}
	rec = postJSON(t, s, chatPath, map[string]any{"sender": "bob", "recipient": "carol", "text": "hi"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("spoke->spoke status = %d", rec.Code)
	}

	hist := httptest.NewRequest("GET", chatPath, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, hist)
	var msgs []models.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("history = %d messages", len(msgs))
	}
}
