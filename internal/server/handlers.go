package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/feedback"
	"github.com/hyperjump/revelation/internal/metadata"
	"github.com/hyperjump/revelation/internal/models"
	"github.com/hyperjump/revelation/internal/ranking"
	"github.com/hyperjump/revelation/internal/storage"
	"go.uber.org/zap"
)

// uploadFields are the accepted multipart field names for the image.
var uploadFields = []string{"image", "file"}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.engine.Ready() {
		status = "starting"
	}
	s.respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:        status,
		ModelLoaded:   s.engine.ModelLoaded(),
		GalleryLoaded: s.engine.Ready(),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.readImage(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	k, err := parseK(r.FormValue("k"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	results, err := s.engine.Predict(r.Context(), data, k)
	if err != nil {
		s.logRequestErr("predict failed", err)
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.decorate(results))
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req models.RankRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("rank request", zap.Int("dims", len(req.Embedding)), zap.Int("k", req.K))
	results, err := s.engine.RankVector(r.Context(), req.Embedding, req.K)
	if err != nil {
		s.logRequestErr("rank failed", err)
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.decorate(results))
}

// decorate attaches same-model siblings from the current catalog.
func (s *Server) decorate(results []ranking.Result) models.PredictionResponse {
	return models.NewPredictionResponse(s.catalog.Catalog(), results)
}

func (s *Server) handleFeedbackCreate(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		s.respondError(w, http.StatusServiceUnavailable, "feedback storage not configured")
		return
	}
	data, filename, err := s.readImage(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	label := strings.TrimSpace(r.FormValue("label"))
	if label == "" {
		s.respondError(w, http.StatusBadRequest, "label cannot be empty")
		return
	}
	if filename == "" {
		filename = "image.jpg"
	}
	rec, err := s.feedback.Submit(r.Context(), data, filename, label)
	if err != nil {
		s.logRequestErr("feedback failed", err)
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"id":         rec.ID,
		"image_path": rec.ImagePath,
	})
}

func (s *Server) handleFeedbackList(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		s.respondError(w, http.StatusServiceUnavailable, "feedback storage not configured")
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	records, err := s.feedback.List(r.Context(), skip, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if records == nil {
		records = []*feedback.Record{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"records": records, "skip": skip, "limit": limit})
}

func (s *Server) handleFeedbackGet(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		s.respondError(w, http.StatusServiceUnavailable, "feedback storage not configured")
		return
	}
	rec, err := s.feedback.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, feedback.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "feedback record not found")
		return
	}
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGearSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	matches := s.catalog.Catalog().Search(r.URL.Query().Get("q"), limit)
	if matches == nil {
		matches = []metadata.Match{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": matches})
}

func (s *Server) handleGearAutocomplete(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	suggestions := s.catalog.Catalog().Autocomplete(r.URL.Query().Get("q"), limit)
	if suggestions == nil {
		suggestions = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleGearSiblings(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	siblings := s.catalog.Catalog().Siblings(label)
	if siblings == nil {
		siblings = []metadata.Sibling{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"label": label, "same_model_gears": siblings})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"service": s.engine.Status(),
		"catalog": map[string]any{"items": s.catalog.Catalog().Len(), "path": s.catalog.Path()},
	}
	if s.feedback != nil {
		if n, err := s.feedback.Count(r.Context()); err == nil {
			resp["feedback_records"] = n
		} else {
			s.logger.Warn("status: count feedback failed", zap.Error(err))
		}
	}
	if s.config != nil {
		resp["config"] = map[string]any{
			"rank_mode":          s.config.Gallery.RankMode,
			"candidate_pool":     s.config.Gallery.CandidatePoolSize,
			"default_k":          s.config.Search.DefaultK,
			"max_k":              s.config.Search.MaxK,
			"gallery_cache_path": s.config.Gallery.CachePath,
			"feedback_storage":   s.config.Feedback.Storage,
		}
		usage, err := storage.Measure(storage.PathsFor(s.config))
		if err == nil {
			resp["disk"] = usage
			resp["disk_usage_bytes"] = usage.Total()
		} else {
			s.logger.Warn("status: measure disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// readImage returns the uploaded image bytes and filename. The part must
// declare an image/* content type.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", errs.Invalid("server.readImage", "invalid multipart form: %v", err)
	}
	var (
		file   multipart.File
		header *multipart.FileHeader
		err    error
	)
	for _, field := range uploadFields {
		file, header, err = r.FormFile(field)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, "", errs.Invalid("server.readImage", "missing image upload")
	}
	defer file.Close()
	if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, "", errs.Invalid("server.readImage", "File must be an image")
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errs.Invalid("server.readImage", "failed to read upload: %v", err)
	}
	return data, header.Filename, nil
}

// parseK reads an optional k. Range checks happen in the service.
func parseK(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	k, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Invalid("server.parseK", "k must be an integer")
	}
	if k == 0 {
		return 0, errs.Invalid("server.parseK", "k must be at least 1")
	}
	return k, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errs.Invalid("server.queryInt", "%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) logRequestErr(msg string, err error) {
	if errors.Is(err, context.Canceled) || errs.KindOf(err) == errs.ErrInvalidInput {
		s.logger.Debug(msg, zap.Error(err))
		return
	}
	s.logger.Error(msg, zap.Error(err))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps err to a status through its error kind.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) && e.Msg != "" && e.Kind == errs.ErrInvalidInput {
		msg = e.Msg
	}
	s.respondJSON(w, status, map[string]string{"error": msg})
}
