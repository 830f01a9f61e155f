package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Solstice-Labs/academy/core/pkg/auth"
	"github.com/Solstice-Labs/academy/core/pkg/content"
	"github.com/Solstice-Labs/academy/core/pkg/engine"
	"github.com/Solstice-Labs/academy/core/pkg/ledger"
	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// Server exposes the engine's admin operations over HTTP.
type Server struct {
	engine   *engine.Engine
	store    content.Store
	verifier *auth.Verifier
	logger   *slog.Logger
}

// NewServer creates the HTTP surface.
func NewServer(eng *engine.Engine, store content.Store, verifier *auth.Verifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: eng, store: store, verifier: verifier, logger: logger.With("component", "api")}
}

// Handler builds the routed handler with auth and rate limiting applied to
// the admin surface. Health stays open.
func (s *Server) Handler(limiter *GlobalRateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	admin := http.NewServeMux()
	admin.HandleFunc("POST /v1/seasons", s.handleCreateSeason)
	admin.HandleFunc("POST /v1/seasons/close", s.handleCloseSeason)
	admin.HandleFunc("POST /v1/courses", s.handleCreateCourse)
	admin.HandleFunc("PUT /v1/courses/{id}", s.handleUpdateCourse)
	admin.HandleFunc("POST /v1/courses/{id}/ledger-retry", s.handleRetryCourseLedger)
	admin.HandleFunc("POST /v1/courses/{id}/archive", s.handleUploadToArchive)
	admin.HandleFunc("POST /v1/archive/bulk", s.handleBulkArchive)
	admin.HandleFunc("GET /v1/courses", s.handleListCourses)
	admin.HandleFunc("GET /v1/courses/{id}", s.handleGetCourse)
	admin.HandleFunc("POST /v1/minters", s.handleRegisterMinter)
	admin.HandleFunc("DELETE /v1/minters/{signer}", s.handleRevokeMinter)
	admin.HandleFunc("POST /v1/achievements", s.handleCreateAchievement)
	admin.HandleFunc("DELETE /v1/achievements/{id}", s.handleDeactivateAchievement)
	admin.HandleFunc("POST /v1/achievements/{id}/awards", s.handleAwardAchievement)
	admin.HandleFunc("POST /v1/xp/grants", s.handleRewardXP)
	admin.HandleFunc("PATCH /v1/config", s.handleUpdateConfig)

	mux.Handle("/v1/", RequireAdmin(s.verifier, admin))

	if limiter != nil {
		return limiter.Middleware(mux)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// writeResult maps an engine outcome to an HTTP response. A partial
// failure is a 202: the request was accepted and durably recorded, but the
// on-chain step still needs a retry.
func (s *Server) writeResult(w http.ResponseWriter, res *engine.Result) {
	status := http.StatusOK
	if res.PartialFailure() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// writeEngineError maps the engine's error taxonomy to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var policyErr *engine.PolicyViolation
	var storeErr *engine.ContentStoreError
	var ledgerErr *engine.LedgerError
	var archiveErr *engine.ArchiveError

	switch {
	case errors.Is(err, engine.ErrMissingCapability):
		WriteUnauthorized(w, "")
	case errors.As(err, &policyErr):
		WriteUnprocessable(w, policyErr.Err.Error())
	case errors.As(err, &storeErr):
		if errors.Is(err, content.ErrNotFound) {
			WriteNotFound(w, storeErr.Err.Error())
			return
		}
		WriteInternal(w, err)
	case errors.As(err, &ledgerErr):
		if errors.Is(err, ledger.ErrNotFound) {
			WriteNotFound(w, ledgerErr.Err.Error())
			return
		}
		WriteBadGateway(w, ledgerErr.Error())
	case errors.As(err, &archiveErr):
		WriteBadGateway(w, archiveErr.Error())
	default:
		WriteInternal(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleCreateSeason(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number uint32 `json:"number"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.CreateSeason(r.Context(), capabilityFrom(r.Context()), req.Number)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleCloseSeason(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CloseSeason(r.Context(), capabilityFrom(r.Context()))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

type courseRequest struct {
	Course  model.Course         `json:"course"`
	Content *model.CourseContent `json:"content,omitempty"`
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.CreateCourse(r.Context(), capabilityFrom(r.Context()),
		engine.CourseRequest{Course: req.Course, Content: req.Content})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if !decode(w, r, &req) {
		return
	}
	if id := r.PathValue("id"); req.Course.ID != "" && req.Course.ID != id {
		WriteBadRequest(w, "course id in path and body disagree")
		return
	} else if req.Course.ID == "" {
		req.Course.ID = id
	}
	res, err := s.engine.UpdateCourse(r.Context(), capabilityFrom(r.Context()),
		engine.CourseRequest{Course: req.Course, Content: req.Content})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleRetryCourseLedger(w http.ResponseWriter, r *http.Request) {
	var course model.Course
	if !decode(w, r, &course) {
		return
	}
	if course.ID == "" {
		course.ID = r.PathValue("id")
	}
	res, err := s.engine.RetryCourseLedger(r.Context(), capabilityFrom(r.Context()), course)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleUploadToArchive(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.UploadToArchive(r.Context(), capabilityFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleBulkArchive(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.BulkUploadToArchive(r.Context(), capabilityFrom(r.Context()))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListCourses(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetCourse(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			WriteNotFound(w, "no such course")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRegisterMinter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Signer       string `json:"signer"`
		Label        string `json:"label"`
		MaxXPPerCall uint64 `json:"max_xp_per_call"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.RegisterMinter(r.Context(), capabilityFrom(r.Context()), ledger.MinterParams{
		Signer:       req.Signer,
		Label:        req.Label,
		MaxXPPerCall: req.MaxXPPerCall,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleRevokeMinter(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RevokeMinter(r.Context(), capabilityFrom(r.Context()), r.PathValue("signer"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleCreateAchievement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		MaxSupply uint64          `json:"max_supply"`
		XPReward  uint64          `json:"xp_reward"`
		Metadata  json.RawMessage `json:"metadata,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.CreateAchievementType(r.Context(), capabilityFrom(r.Context()), engine.AchievementRequest{
		Params: ledger.AchievementParams{
			ID:        req.ID,
			Name:      req.Name,
			MaxSupply: req.MaxSupply,
			XPReward:  req.XPReward,
		},
		Metadata: req.Metadata,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleDeactivateAchievement(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.DeactivateAchievementType(r.Context(), capabilityFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleAwardAchievement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Learner string `json:"learner"`
		Minter  string `json:"minter"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.AwardAchievement(r.Context(), capabilityFrom(r.Context()), ledger.AwardParams{
		AchievementID: r.PathValue("id"),
		Learner:       req.Learner,
		Minter:        req.Minter,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleRewardXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minter  string `json:"minter"`
		Learner string `json:"learner"`
		Amount  uint64 `json:"amount"`
		Reason  string `json:"reason,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.RewardXP(r.Context(), capabilityFrom(r.Context()), ledger.RewardParams{
		Minter:  req.Minter,
		Learner: req.Learner,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Authority        *string `json:"authority,omitempty"`
		BackendSigner    *string `json:"backend_signer,omitempty"`
		MaxDailyXP       *uint64 `json:"max_daily_xp,omitempty"`
		MaxAchievementXP *uint64 `json:"max_achievement_xp,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.UpdateConfig(r.Context(), capabilityFrom(r.Context()), ledger.ConfigParams{
		Authority:        req.Authority,
		BackendSigner:    req.BackendSigner,
		MaxDailyXP:       req.MaxDailyXP,
		MaxAchievementXP: req.MaxAchievementXP,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeResult(w, res)
}
