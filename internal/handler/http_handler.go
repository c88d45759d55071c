package handler

import (
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
	"github.com/pesio-ai/be-exp-cases/internal/logger"
	"github.com/pesio-ai/be-exp-cases/internal/repository"
	"github.com/pesio-ai/be-exp-cases/internal/service"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// HTTPHandler handles HTTP requests for the case engine. Authentication is
// owned by the gateway; the resolved actor arrives in headers.
type HTTPHandler struct {
	cases       *service.CaseService
	transitions *service.TransitionService
	registry    *stage.Registry
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	cases *service.CaseService,
	transitions *service.TransitionService,
	registry *stage.Registry,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		cases:       cases,
		transitions: transitions,
		registry:    registry,
		log:         log,
	}
}

// actor builds the actor context from the gateway-resolved headers plus
// request metadata. ok is false when the headers are absent or carry an
// unknown role.
func (h *HTTPHandler) actor(r *http.Request) (auth.Actor, bool) {
	userID := r.Header.Get("X-User-ID")
	role, okRole := auth.ParseRole(r.Header.Get("X-User-Role"))
	if userID == "" || !okRole {
		return auth.Actor{}, false
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	return auth.Actor{
		UserID:       userID,
		Role:         role,
		DepartmentID: r.Header.Get("X-Department-ID"),
		IP:           ip,
		UserAgent:    r.UserAgent(),
	}, true
}

// CreateCase handles POST /api/v1/cases.
func (h *HTTPHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req struct {
		FileNumber       string  `json:"file_number"`
		DepartmentID     string  `json:"department_id"`
		SupervisorUserID *string `json:"supervisor_user_id"`
		PropertyAddress  *string `json:"property_address"`
		Description      *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	result, err := h.cases.CreateCase(r.Context(), actor, service.CreateCaseRequest{
		FileNumber:       req.FileNumber,
		DepartmentID:     req.DepartmentID,
		SupervisorUserID: req.SupervisorUserID,
		PropertyAddress:  req.PropertyAddress,
		Description:      req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transitionResponse(result))
}

// GetCase handles GET /api/v1/cases/get?id= (or ?file_number=).
func (h *HTTPHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("id")
	fileNumber := r.URL.Query().Get("file_number")
	if caseID == "" && fileNumber == "" {
		h.writeError(w, errors.InvalidInput("id", "case id or file number is required"))
		return
	}

	var (
		c   *repository.Case
		a   *repository.StageAssignment
		err error
	)
	if caseID != "" {
		c, a, err = h.cases.GetCase(r.Context(), caseID)
	} else {
		c, a, err = h.cases.GetCaseByFileNumber(r.Context(), fileNumber)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"case":       c,
		"assignment": a,
	})
}

// DeleteCase handles POST /api/v1/cases/delete?id=.
func (h *HTTPHandler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	caseID := r.URL.Query().Get("id")
	if caseID == "" {
		h.writeError(w, errors.InvalidInput("id", "case id is required"))
		return
	}

	if err := h.cases.DeleteCase(r.Context(), actor, caseID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": caseID})
}

// ListCases handles GET /api/v1/cases.
func (h *HTTPHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	var departmentID, status *string
	if v := r.URL.Query().Get("department_id"); v != "" {
		departmentID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	cases, err := h.cases.ListCases(r.Context(), departmentID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"cases":    cases,
		"page":     page,
		"pageSize": pageSize,
	})
}

// RequestTransition handles POST /api/v1/cases/transition.
func (h *HTTPHandler) RequestTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req struct {
		CaseID       string  `json:"case_id"`
		TargetStage  string  `json:"target_stage"`
		Reason       string  `json:"reason"`
		Observations *string `json:"observations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	if req.CaseID == "" || req.TargetStage == "" {
		h.writeError(w, errors.InvalidInput("body", "case_id and target_stage are required"))
		return
	}

	result, err := h.transitions.RequestTransition(r.Context(), actor, service.TransitionRequest{
		CaseID:       req.CaseID,
		TargetStage:  stage.ID(req.TargetStage),
		Reason:       req.Reason,
		Observations: req.Observations,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transitionResponse(result))
}

// ListProgressions handles GET /api/v1/cases/progressions?case_id=.
func (h *HTTPHandler) ListProgressions(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		h.writeError(w, errors.InvalidInput("case_id", "case id is required"))
		return
	}

	progressions, err := h.cases.ListProgressions(r.Context(), caseID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"progressions": progressions})
}

// ListAssignments handles GET /api/v1/cases/assignments?case_id=.
func (h *HTTPHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		h.writeError(w, errors.InvalidInput("case_id", "case id is required"))
		return
	}

	assignments, err := h.cases.ListAssignments(r.Context(), caseID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

// ListHistory handles GET /api/v1/cases/history?case_id=.
func (h *HTTPHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		h.writeError(w, errors.InvalidInput("case_id", "case id is required"))
		return
	}

	history, err := h.cases.ListHistory(r.Context(), caseID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// ChecklistStatus handles GET /api/v1/cases/checklist?case_id=.
func (h *HTTPHandler) ChecklistStatus(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("case_id")
	if caseID == "" {
		h.writeError(w, errors.InvalidInput("case_id", "case id is required"))
		return
	}

	items, err := h.cases.ChecklistStatus(r.Context(), caseID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"checklist": items})
}

// MarkChecklistItem handles POST /api/v1/cases/checklist/mark.
func (h *HTTPHandler) MarkChecklistItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req struct {
		CaseID    string `json:"case_id"`
		ItemID    string `json:"item_id"`
		Completed bool   `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	if req.CaseID == "" || req.ItemID == "" {
		h.writeError(w, errors.InvalidInput("body", "case_id and item_id are required"))
		return
	}

	completion, err := h.cases.MarkChecklistItem(r.Context(), actor, req.CaseID, req.ItemID, req.Completed)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, completion)
}

// ListStages handles GET /api/v1/stages: a read-only catalog dump for UIs.
func (h *HTTPHandler) ListStages(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stages": h.registry.OrderedMainStages(),
	})
}

// ── response helpers ──────────────────────────────────────────────────────────

func transitionResponse(result *service.TransitionResult) map[string]any {
	return map[string]any{
		"case":        result.Case,
		"assignment":  result.Assignment,
		"progression": result.Progression,
		"warnings":    result.Warnings,
	}
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.Code(err)
	status := errors.HTTPStatus(code)

	body := map[string]any{"code": code, "message": err.Error()}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Details != nil {
		body["details"] = appErr.Details
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		body["message"] = "internal server error"
	}

	h.writeJSON(w, status, map[string]any{"error": body})
}

func (h *HTTPHandler) unauthorized(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{"code": "UNAUTHENTICATED", "message": "missing or invalid actor headers"},
	})
}
