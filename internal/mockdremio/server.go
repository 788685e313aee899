// Package mockdremio implements a minimal in-process Dremio-like API surface
// for provisioning tests: bootstrap, login, catalog writes, and SQL jobs.
package mockdremio

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// Entity records a catalog entity created through the API.
type Entity struct {
	EntityType string
	Name       string
	Path       []string
	SQL        string
	SQLContext []string
	Body       map[string]any
}

// Server implements the endpoint surface used by the provisioner.
type Server struct {
	mu sync.Mutex

	calls    []Call
	admin    map[string]any
	users    []map[string]any
	entities []Entity
	sqls     []string

	token    string
	loggedIn bool

	// runningPolls is how many job-state polls report RUNNING before the job
	// completes. Negative means the job never completes.
	runningPolls int
	pollCount    map[string]int
	nextJob      int

	// schema is the column list served by the job results endpoint.
	schema []string
}

// New constructs a mock server whose discovery job reports the given result
// schema.
func New(schema []string) *Server {
	return &Server{
		token:     "mock-session-token",
		schema:    schema,
		pollCount: make(map[string]int),
		nextJob:   1,
	}
}

// SetRunningPolls makes each job report RUNNING for n polls before
// completing. Negative n keeps jobs RUNNING forever.
func (s *Server) SetRunningPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningPolls = n
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/apiv2/bootstrap/firstuser", s.handleBootstrap)
	mux.HandleFunc("/apiv2/login", s.handleLogin)
	mux.HandleFunc("/api/v3/catalog", s.handleCatalog)
	mux.HandleFunc("/api/v3/catalog/", s.handleCatalogByID)
	mux.HandleFunc("/api/v3/sql", s.handleSQL)
	mux.HandleFunc("/api/v3/job/", s.handleJob)
	mux.HandleFunc("/api/v3/user", s.handleUser)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Entities returns a snapshot of the catalog entities created.
func (s *Server) Entities() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

// SQLs returns a snapshot of the SQL statements submitted.
func (s *Server) SQLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sqls))
	copy(out, s.sqls)
	return out
}

// Users returns a snapshot of accounts created via the user endpoint.
func (s *Server) Users() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.users))
	copy(out, s.users)
	return out
}

// Admin returns the account registered through the bootstrap endpoint.
func (s *Server) Admin() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := "_dremio" + s.token
	loggedIn := s.loggedIn
	s.mu.Unlock()

	if !loggedIn {
		http.Error(w, `{"errorMessage":"no session"}`, http.StatusUnauthorized)
		return false
	}
	if r.Header.Get("Authorization") != expected {
		http.Error(w, `{"errorMessage":"unauthorized"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var user map[string]any
	if err := decodeJSONBody(r, &user); err != nil {
		http.Error(w, `{"errorMessage":"bad body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin != nil {
		http.Error(w, `{"errorMessage":"first user already exists"}`, http.StatusBadRequest)
		return
	}
	s.admin = user
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		UserName string `json:"userName"`
		Password string `json:"password"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		http.Error(w, `{"errorMessage":"bad body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin == nil || s.admin["userName"] != body.UserName || s.admin["password"] != body.Password {
		http.Error(w, `{"errorMessage":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	s.loggedIn = true
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": s.token})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body map[string]any
	if err := decodeJSONBody(r, &body); err != nil {
		http.Error(w, `{"errorMessage":"bad body"}`, http.StatusBadRequest)
		return
	}
	ent := entityFromBody(body)

	s.mu.Lock()
	for _, existing := range s.entities {
		if existing.EntityType == ent.EntityType && existing.Name == ent.Name && ent.Name != "" {
			s.mu.Unlock()
			http.Error(w, `{"errorMessage":"entity already exists"}`, http.StatusConflict)
			return
		}
	}
	s.entities = append(s.entities, ent)
	id := fmt.Sprintf("entity-%06d", len(s.entities))
	s.mu.Unlock()

	body["id"] = id
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleCatalogByID(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v3/catalog/")
	if strings.HasPrefix(rest, "by-path/") {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		segments := strings.Split(strings.TrimPrefix(rest, "by-path/"), "/")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entityType": "folder",
			"id":         "dremio:/" + strings.Join(segments, "/"),
			"path":       segments,
		})
		return
	}

	// Promotion: POST against the url-encoded catalog id.
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body map[string]any
	if err := decodeJSONBody(r, &body); err != nil {
		http.Error(w, `{"errorMessage":"bad body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.entities = append(s.entities, entityFromBody(body))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		SQL string `json:"sql"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		http.Error(w, `{"errorMessage":"bad body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.sqls = append(s.sqls, body.SQL)
	jobID := fmt.Sprintf("job-%06d", s.nextJob)
	s.nextJob++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": jobID})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v3/job/")
	parts := strings.Split(rest, "/")
	jobID := parts[0]

	if len(parts) == 2 && parts[1] == "results" {
		s.mu.Lock()
		schema := make([]map[string]string, 0, len(s.schema))
		for _, col := range s.schema {
			schema = append(schema, map[string]string{"name": col})
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rowCount": 0,
			"schema":   schema,
		})
		return
	}

	s.mu.Lock()
	s.pollCount[jobID]++
	state := "COMPLETED"
	if s.runningPolls < 0 || s.pollCount[jobID] <= s.runningPolls {
		state = "RUNNING"
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"jobState": state})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var user map[string]any
	if err := decodeJSONBody(r, &user); err != nil {
		http.Error(w, `{"errorMessage":"bad body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.users = append(s.users, user)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(user)
}

func entityFromBody(body map[string]any) Entity {
	ent := Entity{Body: body}
	ent.EntityType, _ = body["entityType"].(string)
	ent.Name, _ = body["name"].(string)
	ent.SQL, _ = body["sql"].(string)
	ent.Path = stringList(body["path"])
	ent.SQLContext = stringList(body["sqlContext"])
	return ent
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func decodeJSONBody(r *http.Request, out any) error {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return fmt.Errorf("empty body")
	}
	return json.Unmarshal(b, out)
}
