package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"awardflow/audit"
	"awardflow/draft"
	"awardflow/draftgen"
	"awardflow/escalation"
	"awardflow/finalize"
	"awardflow/identity"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// ReviewService is the review decision engine surface the API exposes.
type ReviewService interface {
	Approve(ctx context.Context, caseID string, notes *string, rc draft.ReviewContext) (draft.DraftAward, error)
	Modify(ctx context.Context, caseID string, changes draft.FieldChanges, changeSummary string, rc draft.ReviewContext) (draft.Revision, error)
	Reject(ctx context.Context, caseID string, feedback draft.RejectFeedback, rc draft.ReviewContext) (draft.DraftAward, error)
	Escalate(ctx context.Context, caseID string, reason escalation.Reason, detail *string, urgency escalation.Urgency, rc draft.ReviewContext) (escalation.Record, error)
}

// FinalizeService issues binding awards.
type FinalizeService interface {
	CanIssue(ctx context.Context, caseID string) (finalize.CanIssueResult, error)
	Finalize(ctx context.Context, caseID, arbitratorID, ipAddress, userAgent string) (finalize.Result, error)
}

// AuditReporter serves case timelines and chain verification.
type AuditReporter interface {
	CaseTimeline(ctx context.Context, caseID string) (audit.Timeline, error)
	VerifyChain(ctx context.Context) (audit.VerifyReport, error)
	Export(ctx context.Context, caseID string, format audit.ExportFormat) ([]byte, error)
}

// IdentityService handles registration, login and token verification.
type IdentityService interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.User, error)
	Login(ctx context.Context, req identity.LoginRequest) (identity.LoginResult, error)
	VerifyToken(tokenString string) (string, identity.Role, error)
}

// DraftReader reads drafts for the inspection endpoints.
type DraftReader interface {
	GetByCase(ctx context.Context, caseID string) (draft.DraftAward, error)
}

// RevisionReader reads the revision ledger.
type RevisionReader interface {
	History(ctx context.Context, draftAwardID string) ([]draft.Revision, error)
	Get(ctx context.Context, draftAwardID string, version int) (draft.Revision, error)
}

// DraftGenerator runs generation for a case that entered analysis.
type DraftGenerator interface {
	GenerateDraft(ctx context.Context, summary draftgen.CaseSummary) (draft.DraftAward, error)
}

type Server struct {
	identityService IdentityService
	reviewService   ReviewService
	finalizeService FinalizeService
	reporter        AuditReporter
	drafts          DraftReader
	revisions       RevisionReader
	generator       DraftGenerator
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/api/cases/{caseID}/draft", s.handleGetDraft)
		r.Get("/api/cases/{caseID}/draft/revisions", s.handleRevisionHistory)
		r.Get("/api/cases/{caseID}/draft/revisions/{version}", s.handleGetRevision)
		r.Get("/api/cases/{caseID}/timeline", s.handleTimeline)
		r.Get("/api/cases/{caseID}/timeline/export", s.handleTimelineExport)

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(identity.RoleArbitrator, identity.RoleSeniorReviewer))
			r.Post("/api/cases/{caseID}/review/approve", s.handleApprove)
			r.Post("/api/cases/{caseID}/review/modify", s.handleModify)
			r.Post("/api/cases/{caseID}/review/reject", s.handleReject)
			r.Post("/api/cases/{caseID}/review/escalate", s.handleEscalate)
			r.Get("/api/cases/{caseID}/award/can-issue", s.handleCanIssue)
			r.Post("/api/cases/{caseID}/award/finalize", s.handleFinalize)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(identity.RoleAdmin))
			r.Get("/api/audit/verify", s.handleVerifyChain)
			r.Post("/api/cases/{caseID}/draft/generate", s.handleGenerateDraft)
		})
	})

	return r
}

// requestID tags every request so log lines and error reports correlate.
// Inbound X-Request-ID values are kept; gateways upstream set them.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.identityService.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(ctxKeyRole).(identity.Role)
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient role")
		})
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	user, err := s.identityService.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     string(user.Role),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	result, err := s.identityService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User: userResponse{
			ID:       result.User.ID,
			Email:    result.User.Email,
			FullName: result.User.FullName,
			Role:     string(result.User.Role),
		},
	})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.drafts.GetByCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(d))
}

func (s *Server) handleRevisionHistory(w http.ResponseWriter, r *http.Request) {
	d, err := s.drafts.GetByCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	history, err := s.revisions.History(r.Context(), d.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	items := make([]revisionPayload, 0, len(history))
	for _, rev := range history {
		items = append(items, revisionResponse(rev))
	}
	writeJSON(w, http.StatusOK, listResponse[revisionPayload]{Items: items, Total: len(items)})
}

func (s *Server) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "invalid version")
		return
	}
	d, err := s.drafts.GetByCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	rev, err := s.revisions.Get(r.Context(), d.ID, version)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revisionResponse(rev))
}

type approveRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	d, err := s.reviewService.Approve(r.Context(), chi.URLParam(r, "caseID"), req.Notes, reviewContext(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(d))
}

type modifyRequest struct {
	Findings        []draft.FindingOfFact   `json:"findings_of_fact,omitempty"`
	Conclusions     []draft.ConclusionOfLaw `json:"conclusions_of_law,omitempty"`
	Decision        *string                 `json:"decision,omitempty"`
	AwardAmount     *float64                `json:"award_amount,omitempty"`
	PrevailingParty *draft.PrevailingParty  `json:"prevailing_party,omitempty"`
	Reasoning       *string                 `json:"reasoning,omitempty"`
	ChangeSummary   string                  `json:"change_summary"`
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rev, err := s.reviewService.Modify(r.Context(), chi.URLParam(r, "caseID"), draft.FieldChanges{
		Findings:        req.Findings,
		Conclusions:     req.Conclusions,
		Decision:        req.Decision,
		AwardAmount:     req.AwardAmount,
		PrevailingParty: req.PrevailingParty,
		Reasoning:       req.Reasoning,
	}, req.ChangeSummary, reviewContext(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revisionResponse(rev))
}

type rejectRequest struct {
	Category            draft.FeedbackCategory `json:"category"`
	Severity            draft.FeedbackSeverity `json:"severity"`
	Description         string                 `json:"description"`
	AffectedSections    []string               `json:"affected_sections,omitempty"`
	SuggestedCorrection string                 `json:"suggested_correction,omitempty"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	d, err := s.reviewService.Reject(r.Context(), chi.URLParam(r, "caseID"), draft.RejectFeedback{
		Category:            req.Category,
		Severity:            req.Severity,
		Description:         req.Description,
		AffectedSections:    req.AffectedSections,
		SuggestedCorrection: req.SuggestedCorrection,
	}, reviewContext(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(d))
}

type escalateRequest struct {
	Reason  escalation.Reason  `json:"reason"`
	Detail  *string            `json:"detail,omitempty"`
	Urgency escalation.Urgency `json:"urgency,omitempty"`
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rec, err := s.reviewService.Escalate(r.Context(), chi.URLParam(r, "caseID"),
		req.Reason, req.Detail, req.Urgency, reviewContext(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escalationResponse(rec))
}

func (s *Server) handleCanIssue(w http.ResponseWriter, r *http.Request) {
	result, err := s.finalizeService.CanIssue(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	result, err := s.finalizeService.Finalize(r.Context(), chi.URLParam(r, "caseID"),
		userID, clientIP(r), r.UserAgent())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := s.reporter.CaseTimeline(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (s *Server) handleTimelineExport(w http.ResponseWriter, r *http.Request) {
	format := audit.ExportFormat(r.URL.Query().Get("format"))
	body, err := s.reporter.Export(r.Context(), chi.URLParam(r, "caseID"), format)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if format == audit.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := s.reporter.VerifyChain(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type generateRequest struct {
	ClaimSummary      string   `json:"claim_summary"`
	ResponseSummary   string   `json:"response_summary"`
	EvidenceSummaries []string `json:"evidence_summaries,omitempty"`
	PriorFeedback     string   `json:"prior_feedback,omitempty"`
}

func (s *Server) handleGenerateDraft(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "draft generation not configured")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	d, err := s.generator.GenerateDraft(r.Context(), draftgen.CaseSummary{
		CaseID:            chi.URLParam(r, "caseID"),
		ClaimSummary:      req.ClaimSummary,
		ResponseSummary:   req.ResponseSummary,
		EvidenceSummaries: req.EvidenceSummaries,
		PriorFeedback:     req.PriorFeedback,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draftResponse(d))
}

// writeServiceError maps domain sentinels to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, draft.ErrNotFound),
		errors.Is(err, draft.ErrRevisionNotFound),
		errors.Is(err, escalation.ErrNotFound),
		errors.Is(err, finalize.ErrAwardNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, escalation.ErrActiveEscalation),
		errors.Is(err, finalize.ErrAlreadyIssued),
		errors.Is(err, draft.ErrDraftExists),
		errors.Is(err, identity.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, draft.ErrNoChanges),
		errors.Is(err, draft.ErrMissingSummary),
		errors.Is(err, draft.ErrInvalidFeedback),
		errors.Is(err, escalation.ErrBadStatus),
		errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, finalize.ErrNotIssuable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func reviewContext(r *http.Request) draft.ReviewContext {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	return draft.ReviewContext{
		ArbitratorID: userID,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
