// Package registrytest provides an in-memory registry served over httptest
// for exercising regcheck against a predictable backend.
package registrytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"regcheck/internal/descriptor"
)

// Server is a fake registry. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	order    []string
	entries  map[string]descriptor.Service
	failures map[string][]int
	requests map[string]int

	// EnrichAPIs, when set, is merged into every stored entry's apis.
	EnrichAPIs map[string]string
	// DropIDs makes the registry store entries without echoing their id.
	DropIDs bool
	// TotalOffset is added to the reported total of every listing.
	TotalOffset int
	// IgnoreDeletes makes DELETE succeed without removing the entry.
	IgnoreDeletes bool
}

// NewServer starts a fake registry. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		entries:  make(map[string]descriptor.Service),
		failures: make(map[string][]int),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Seed stores services as if they had been created through the API.
func (s *Server) Seed(services ...descriptor.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range services {
		s.store(svc.ID, svc)
	}
}

// FailNext makes the next request for op ("create", "read", "delete",
// "list", "ping") answer with status. Calls queue up.
func (s *Server) FailNext(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], status)
}

// Requests returns how many requests were seen for op.
func (s *Server) Requests(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[op]
}

// Len returns the number of stored entries.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Get returns a stored entry.
func (s *Server) Get(id string) (descriptor.Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.entries[id]
	return svc, ok
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/")

	op := ""
	switch {
	case r.Method == http.MethodGet && id == "health":
		op = "ping"
	case r.Method == http.MethodGet && id == "":
		op = "list"
	case r.Method == http.MethodGet:
		op = "read"
	case r.Method == http.MethodPut && id != "":
		op = "create"
	case r.Method == http.MethodDelete && id != "":
		op = "delete"
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[op]++
	if queue := s.failures[op]; len(queue) > 0 {
		s.failures[op] = queue[1:]
		writeError(w, queue[0], "injected failure")
		return
	}

	switch op {
	case "ping":
		w.WriteHeader(http.StatusOK)
	case "list":
		s.list(w, r)
	case "read":
		svc, ok := s.entries[id]
		if !ok {
			writeError(w, http.StatusNotFound, "Service not found")
			return
		}
		writeJSON(w, http.StatusOK, svc)
	case "create":
		var svc descriptor.Service
		if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
			writeError(w, http.StatusBadRequest, "Error processing the request: "+err.Error())
			return
		}
		_, existed := s.entries[id]
		stored := s.store(id, svc)
		status := http.StatusCreated
		if existed {
			status = http.StatusOK
		}
		writeJSON(w, status, stored)
	case "delete":
		if _, ok := s.entries[id]; !ok {
			writeError(w, http.StatusNotFound, "Service not found")
			return
		}
		if !s.IgnoreDeletes {
			s.remove(id)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 100
	}

	idx := descriptor.Index{
		Total:    len(s.order) + s.TotalOffset,
		Services: []descriptor.Service{},
		Page:     page,
		PerPage:  perPage,
	}
	start := (page - 1) * perPage
	for i := start; i < len(s.order) && i < start+perPage; i++ {
		idx.Services = append(idx.Services, s.entries[s.order[i]])
	}
	writeJSON(w, http.StatusOK, idx)
}

// store must be called with mu held.
func (s *Server) store(id string, svc descriptor.Service) descriptor.Service {
	stored := *svc.Clone()
	stored.ID = id
	if s.DropIDs {
		stored.ID = ""
	}
	if len(s.EnrichAPIs) > 0 {
		if stored.APIs == nil {
			stored.APIs = make(map[string]string)
		}
		for k, v := range s.EnrichAPIs {
			stored.APIs[k] = v
		}
	}
	if _, exists := s.entries[id]; !exists {
		s.order = append(s.order, id)
	}
	s.entries[id] = stored
	return stored
}

// remove must be called with mu held.
func (s *Server) remove(id string) {
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "message": msg})
}
