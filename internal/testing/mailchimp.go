package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/desertthunder/listsync/internal/models"
)

// FakeMailchimp is an in-memory stand-in for the list endpoints of the Marketing API.
//
// Fields may be changed before the first request. Every request is counted by
// "METHOD path" so tests can assert call counts.
type FakeMailchimp struct {
	Server      *httptest.Server
	ListID      string
	Categories  []models.Category
	Interests   map[string][]models.Interest // keyed by category id
	MergeFields []models.MergeField

	// RejectEmails makes the batch endpoint report these addresses as failed.
	RejectEmails map[string]string
	// BatchStatus, when set, is returned instead of a batch response.
	BatchStatus int
	// RawBatchResponse, when set, is written verbatim as the batch response body.
	RawBatchResponse string

	mu      sync.Mutex
	calls   map[string]int
	batches []models.BatchRequest
}

// NewFakeMailchimp starts a fake server for listID; it is closed when the test ends.
func NewFakeMailchimp(t *testing.T, listID string) *FakeMailchimp {
	t.Helper()
	f := &FakeMailchimp{
		ListID:       listID,
		Interests:    make(map[string][]models.Interest),
		RejectEmails: make(map[string]string),
		calls:        make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", f.handleRoot)
	mux.HandleFunc("GET /lists/{id}", f.handleList)
	mux.HandleFunc("POST /lists/{id}", f.handleBatch)
	mux.HandleFunc("GET /lists/{id}/interest-categories", f.handleCategories)
	mux.HandleFunc("GET /lists/{id}/interest-categories/{cat}/interests", f.handleInterests)
	mux.HandleFunc("GET /lists/{id}/merge-fields", f.handleMergeFields)

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API root of the fake.
func (f *FakeMailchimp) URL() string { return f.Server.URL }

// Calls returns how many times "METHOD path" was requested.
func (f *FakeMailchimp) Calls(methodPath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[methodPath]
}

// Batches returns the batch requests received, in order.
func (f *FakeMailchimp) Batches() []models.BatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BatchRequest(nil), f.batches...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title string) {
	writeJSON(w, status, map[string]any{"status": status, "title": title, "detail": title})
}

func (f *FakeMailchimp) knownList(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("id") != f.ListID {
		writeProblem(w, http.StatusNotFound, "Resource Not Found")
		return false
	}
	return true
}

// page slices items by the count and offset query parameters.
func page[T any](r *http.Request, items []T) []T {
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		count = 10
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset >= len(items) {
		return []T{}
	}
	end := offset + count
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (f *FakeMailchimp) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"account_id": "fake", "account_name": "Fake"})
}

func (f *FakeMailchimp) handleList(w http.ResponseWriter, r *http.Request) {
	if !f.knownList(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": f.ListID, "name": "Fake List", "stats": map[string]int{"member_count": 0}})
}

func (f *FakeMailchimp) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !f.knownList(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":  page(r, f.Categories),
		"total_items": len(f.Categories),
	})
}

func (f *FakeMailchimp) handleInterests(w http.ResponseWriter, r *http.Request) {
	if !f.knownList(w, r) {
		return
	}
	interests, ok := f.Interests[r.PathValue("cat")]
	if !ok {
		writeProblem(w, http.StatusNotFound, "Resource Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"interests":   page(r, interests),
		"total_items": len(interests),
	})
}

func (f *FakeMailchimp) handleMergeFields(w http.ResponseWriter, r *http.Request) {
	if !f.knownList(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"merge_fields": page(r, f.MergeFields),
		"total_items":  len(f.MergeFields),
	})
}

func (f *FakeMailchimp) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !f.knownList(w, r) {
		return
	}

	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, fmt.Sprintf("Invalid Resource: %v", err))
		return
	}

	f.mu.Lock()
	f.batches = append(f.batches, req)
	f.mu.Unlock()

	if f.BatchStatus != 0 {
		writeProblem(w, f.BatchStatus, http.StatusText(f.BatchStatus))
		return
	}
	if f.RawBatchResponse != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(f.RawBatchResponse))
		return
	}

	resp := models.BatchResponse{Errors: []models.MemberError{}}
	for _, m := range req.Members {
		if msg, ok := f.RejectEmails[m.EmailAddress]; ok {
			resp.ErrorCount++
			resp.Errors = append(resp.Errors, models.MemberError{EmailAddress: m.EmailAddress, Error: msg, ErrorCode: "ERROR_GENERIC"})
			continue
		}
		resp.TotalCreated++
	}
	writeJSON(w, http.StatusOK, resp)
}
