package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carmarket/internal/app"
	"carmarket/internal/ratelimit"
	"carmarket/internal/util"
	"carmarket/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                     *app.App
	RedisAddr               string
	RedisPassword           string
	WriteRateLimitPerMinute int
	TrustedProxyCIDRs       []string
}

// Server exposes the catalog HTTP endpoints. It translates protocol
// concerns only; every business rule lives in the app package.
type Server struct {
	app          *app.App
	mux          *http.ServeMux
	writeLimiter *ratelimit.FixedWindowLimiter
	trusted      *util.TrustedProxies
}

// New constructs the server with routes configured. Write endpoints are
// rate limited per client IP when Redis is configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:     cfg.App,
		mux:     http.NewServeMux(),
		trusted: trusted,
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		limit := cfg.WriteRateLimitPerMinute
		if limit <= 0 {
			limit = 60
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "carmarket:ratelimit:write", limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init write limiter: %w", err)
		}
		s.writeLimiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("carmarket", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/listings", s.handleListings)
	s.mux.HandleFunc("/listings/", s.handleListingByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /listings
func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.allowWrite(w, r) {
			return
		}
		s.handleCreateListing(w, r)
	case http.MethodGet:
		s.handleSearch(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /listings/{id} or /listings/{id}/sold
func (s *Server) handleListingByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/listings/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not_found", "listing not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] == "sold" && r.Method == http.MethodPost {
			if !s.allowWrite(w, r) {
				return
			}
			s.handleMarkSold(w, id)
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		listing, err := s.app.GetListing(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	case http.MethodPatch:
		if !s.allowWrite(w, r) {
			return
		}
		s.handleUpdateListing(w, r, id)
	case http.MethodDelete:
		if !s.allowWrite(w, r) {
			return
		}
		if err := s.app.RemoveListing(id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid request body: "+err.Error())
		return
	}
	listing, err := s.app.AddListing(app.NewListing{
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		Price:       req.Price,
		Mileage:     req.Mileage,
		Title:       req.Title,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request, id string) {
	var req updateListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid request body: "+err.Error())
		return
	}
	listing, err := s.app.UpdateListing(id, app.ListingPatch{
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		Price:       req.Price,
		Mileage:     req.Mileage,
		Title:       req.Title,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleMarkSold(w http.ResponseWriter, id string) {
	listing, err := s.app.MarkSold(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	criteria, fieldErrs := parseSearchCriteria(r)
	if len(fieldErrs) > 0 {
		writeValidationError(w, &app.ValidationError{Fields: fieldErrs})
		return
	}
	result, err := s.app.Search(criteria)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Items:    result.Items,
		Count:    len(result.Items),
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

// recognized query parameters for GET /listings
var searchParams = map[string]struct{}{
	"make": {}, "model": {}, "status": {}, "q": {},
	"min_price": {}, "max_price": {}, "min_year": {}, "max_year": {},
	"min_mileage": {}, "max_mileage": {},
	"sort_by": {}, "sort_dir": {}, "page": {}, "page_size": {},
}

func parseSearchCriteria(r *http.Request) (app.SearchCriteria, []app.FieldError) {
	values := r.URL.Query()
	var fieldErrs []app.FieldError
	for key := range values {
		if _, ok := searchParams[key]; !ok {
			fieldErrs = append(fieldErrs, app.FieldError{Field: key, Message: "unknown parameter"})
		}
	}

	badField := func(field, message string) {
		fieldErrs = append(fieldErrs, app.FieldError{Field: field, Message: message})
	}
	floatParam := func(field string) *float64 {
		raw := values.Get(field)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badField(field, "must be a number")
			return nil
		}
		return &v
	}
	intParam := func(field string) *int {
		raw := values.Get(field)
		if raw == "" {
			return nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			badField(field, "must be an integer")
			return nil
		}
		return &v
	}

	criteria := app.SearchCriteria{
		Make:       values.Get("make"),
		Model:      values.Get("model"),
		Status:     values.Get("status"),
		Text:       values.Get("q"),
		MinPrice:   floatParam("min_price"),
		MaxPrice:   floatParam("max_price"),
		MinYear:    intParam("min_year"),
		MaxYear:    intParam("max_year"),
		MinMileage: intParam("min_mileage"),
		MaxMileage: intParam("max_mileage"),
		SortBy:     values.Get("sort_by"),
		SortDir:    values.Get("sort_dir"),
	}
	if p := intParam("page"); p != nil {
		criteria.Page = *p
	}
	if p := intParam("page_size"); p != nil {
		criteria.PageSize = *p
	}
	return criteria, fieldErrs
}

func (s *Server) allowWrite(w http.ResponseWriter, r *http.Request) bool {
	if s.writeLimiter == nil {
		return true
	}
	key := util.ClientIP(r, s.trusted)
	if s.writeLimiter.Allow(key) {
		return true
	}
	slog.Warn("write rate limited", "ip", key, "path", r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many write requests")
	return false
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

type createListingRequest struct {
	Make        string   `json:"make"`
	Model       string   `json:"model"`
	Year        *int     `json:"year"`
	Price       *float64 `json:"price"`
	Mileage     *int     `json:"mileage"`
	Title       string   `json:"title"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
}

type updateListingRequest struct {
	Make        *string  `json:"make"`
	Model       *string  `json:"model"`
	Year        *int     `json:"year"`
	Price       *float64 `json:"price"`
	Mileage     *int     `json:"mileage"`
	Title       *string  `json:"title"`
	Location    *string  `json:"location"`
	Description *string  `json:"description"`
}

type searchResponse struct {
	Items    []domain.Listing `json:"items"`
	Count    int              `json:"count"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

type errorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Fields  []app.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: msg})
}

func writeValidationError(w http.ResponseWriter, verr *app.ValidationError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   "validation_failed",
		Message: verr.Error(),
		Fields:  verr.Fields,
	})
}

// writeAppError maps engine errors to responses. Unknown errors become a
// generic 500 with no internal detail in the body.
func writeAppError(w http.ResponseWriter, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.Is(err, app.ErrListingNotFound):
		writeError(w, http.StatusNotFound, "not_found", "listing not found")
	case errors.Is(err, app.ErrListingAlreadySold):
		writeError(w, http.StatusConflict, "conflict", "listing already sold")
	default:
		slog.Error("catalog failure", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
