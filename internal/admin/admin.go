// Package admin implements navid's control-plane HTTP API: URL Space
// introspection, cache flush, and scheduler job listing, behind bearer-token
// auth, for navidctl to drive. Trimmed to a single-admin-token model (no
// user/group identity store in this domain).
package admin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/navispace/navid/internal/logger"
	"github.com/navispace/navid/pkg/cache"
	"github.com/navispace/navid/pkg/scheduler"
	"github.com/navispace/navid/pkg/urlspace"
)

// Server exposes the introspection/maintenance API over the junction,
// caches, and scheduler it was constructed with.
type Server struct {
	junction    *urlspace.Junction
	caches      map[string]*cache.Cache
	scheduler   *scheduler.Scheduler
	signingKey  []byte
}

// NewServer builds an admin server. signingKey authenticates bearer tokens
// minted by IssueToken; an empty key disables auth entirely (local/dev use).
func NewServer(junction *urlspace.Junction, caches map[string]*cache.Cache, sched *scheduler.Scheduler, signingKey string) *Server {
	return &Server{junction: junction, caches: caches, scheduler: sched, signingKey: []byte(signingKey)}
}

// IssueToken mints an HS256 bearer token valid for ttl, signed with
// signingKey.
func IssueToken(signingKey string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "navid-admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(signingKey))
}

// Router builds the chi handler serving this server's API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/urlspace", s.handleURLSpaceWalk)
		r.Post("/cache/{name}/flush", s.handleCacheFlush)
		r.Get("/scheduler/jobs", s.handleSchedulerJobs)
	})

	return r
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.signingKey) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "authorization header required", http.StatusUnauthorized)
			return
		}
		_, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			return s.signingKey, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// URLSpaceEntry mirrors urlspace.WalkRecord for JSON transport.
type URLSpaceEntry struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Filter string `json:"filter"`
	Kind   string `json:"kind"`
}

func (s *Server) handleURLSpaceWalk(w http.ResponseWriter, r *http.Request) {
	var entries []URLSpaceEntry
	s.junction.Walk(func(rec urlspace.WalkRecord) {
		entries = append(entries, URLSpaceEntry{Key: rec.Key, URL: rec.URL, Filter: rec.Filter, Kind: rec.Kind})
	})
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	c, ok := s.caches[name]
	if !ok {
		http.Error(w, "unknown cache: "+name, http.StatusNotFound)
		return
	}
	n := c.Flush()
	logger.Info("admin cache flush", "cache", name, "entries", n)
	writeJSON(w, http.StatusOK, map[string]int{"flushed": n})
}

func (s *Server) handleSchedulerJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Jobs())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
