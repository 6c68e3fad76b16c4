package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"farmacaixa/internal/apierror"
	"farmacaixa/internal/dto"
	"farmacaixa/internal/middleware"
	"farmacaixa/internal/model"
	"farmacaixa/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CaixaHandler struct {
	sessions service.SessionManager
	ledger   service.LedgerService
}

func NewCaixaHandler(sessions service.SessionManager, ledger service.LedgerService) *CaixaHandler {
	return &CaixaHandler{sessions: sessions, ledger: ledger}
}

// Open godoc
// @Summary Opens a cash session at a location
// @Tags caixa
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Opening data"
// @Success 201 {object} dto.SessionResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Failure 503 {object} apierror.APIError
// @Router /v1/caixa/sessions [post]
func (h *CaixaHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	location, ok := resolveLocation(c, claims, req.LocationID)
	if !ok {
		return
	}
	openingFloat, err := toCents("opening_float", *req.OpeningFloat)
	if err != nil {
		writeError(c, err)
		return
	}

	sess, err := h.sessions.Open(c.Request.Context(), service.OpenInput{
		LocationID:   location,
		ActorID:      claims.ActorID(),
		OpeningFloat: openingFloat,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(service.SessionView{Session: *sess, OpenedByName: claims.Username}))
}

// Close godoc
// @Summary Closes a session with the counted cash and reconciles it
// @Tags caixa
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body dto.CloseSessionRequest true "Blind count"
// @Success 200 {object} dto.ReconciliationResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Failure 503 {object} apierror.APIError
// @Router /v1/caixa/sessions/{id}/close [post]
func (h *CaixaHandler) Close(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	counted, err := toCents("counted_close_amount", *req.CountedCloseAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	claims := middleware.GetClaims(c)

	rec, err := h.sessions.Close(c.Request.Context(), service.CloseInput{
		SessionID:          id,
		ActorID:            claims.ActorID(),
		CountedCloseAmount: counted,
		Notes:              req.Notes,
		Scope:              claims.Scope(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReconciliationResponse(id, *rec))
}

// RecordMovement godoc
// @Summary Records a withdrawal (sangria) or deposit (suprimento)
// @Tags caixa
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body dto.MovementRequest true "Movement"
// @Success 201 {object} dto.MovementResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/caixa/sessions/{id}/movements [post]
func (h *CaixaHandler) RecordMovement(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dto.MovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	amount, err := toCents("amount", req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	claims := middleware.GetClaims(c)

	mov, err := h.ledger.Record(c.Request.Context(), service.RecordInput{
		SessionID:   id,
		Kind:        model.MovementKind(req.Kind),
		Amount:      amount,
		Description: req.Description,
		ActorID:     claims.ActorID(),
		Scope:       claims.Scope(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMovementResponse(*mov))
}

// RecordSaleSettlement godoc
// @Summary Records the cash settlement of a completed sale (sales subsystem)
// @Tags caixa
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body dto.SaleSettlementRequest true "Settlement"
// @Success 201 {object} dto.MovementResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/caixa/sessions/{id}/sale-settlements [post]
func (h *CaixaHandler) RecordSaleSettlement(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req dto.SaleSettlementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	amount, err := toCents("amount", req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	claims := middleware.GetClaims(c)

	mov, err := h.ledger.Record(c.Request.Context(), service.RecordInput{
		SessionID:   id,
		Kind:        model.KindSaleSettlement,
		Amount:      amount,
		Description: req.Description,
		ActorID:     claims.ActorID(),
		ReferenceID: req.ReferenceID,
		Scope:       claims.Scope(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMovementResponse(*mov))
}

// Status godoc
// @Summary Returns the OPEN session of a location, or null
// @Tags caixa
// @Produce json
// @Security BearerAuth
// @Param location_id query string false "Location (defaults to the token's)"
// @Success 200 {object} dto.StatusResponse
// @Router /v1/caixa/status [get]
func (h *CaixaHandler) Status(c *gin.Context) {
	claims := middleware.GetClaims(c)
	location, ok := resolveLocation(c, claims, c.Query("location_id"))
	if !ok {
		return
	}
	sess, err := h.sessions.Status(c.Request.Context(), location)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := dto.StatusResponse{}
	if sess != nil {
		s := toSessionResponse(service.SessionView{Session: *sess})
		resp.Session = &s
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary Lists sessions, newest first
// @Tags caixa
// @Produce json
// @Security BearerAuth
// @Param location_id query string false "Location"
// @Param from query string false "From date (YYYY-MM-DD, inclusive)"
// @Param to query string false "To date (YYYY-MM-DD, inclusive)"
// @Param status query string false "OPEN or CLOSED"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} dto.HistoryResponse
// @Router /v1/caixa/history [get]
func (h *CaixaHandler) History(c *gin.Context) {
	var q dto.HistoryQuery
	if !bindQuery(c, &q) {
		return
	}
	claims := middleware.GetClaims(c)
	location := q.LocationID
	if scope := claims.Scope(); scope != "" {
		if location != "" && location != scope {
			writeAPIError(c, http.StatusForbidden, apierror.New(model.CodeForbidden, "token is bound to another location"))
			return
		}
		location = scope
	}

	f := service.HistoryFilter{
		LocationID: location,
		Status:     model.SessionStatus(q.Status),
		Page:       q.Page,
		Limit:      q.Limit,
	}
	// validator already checked the layout
	if q.From != "" {
		from, _ := time.Parse(time.DateOnly, q.From)
		f.From = &from
	}
	if q.To != "" {
		to, _ := time.Parse(time.DateOnly, q.To)
		to = to.AddDate(0, 0, 1)
		f.To = &to
	}

	page, err := h.sessions.History(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := dto.HistoryResponse{
		Sessions: make([]dto.SessionResponse, 0, len(page.Sessions)),
		Page:     page.Page,
		Limit:    page.Limit,
		Total:    page.Total,
	}
	for _, v := range page.Sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(v))
	}
	c.JSON(http.StatusOK, resp)
}

// ListMovements godoc
// @Summary Lists the movements of a session in ledger order
// @Tags caixa
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {array} dto.MovementResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/caixa/sessions/{id}/movements [get]
func (h *CaixaHandler) ListMovements(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	movs, err := h.ledger.ListForSession(c.Request.Context(), id, middleware.GetClaims(c).Scope())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.MovementResponse, 0, len(movs))
	for _, m := range movs {
		resp = append(resp, toMovementResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

// Detail godoc
// @Summary Session with movements and reconciliation (live expected amount while OPEN)
// @Tags caixa
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionDetailResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/caixa/sessions/{id} [get]
func (h *CaixaHandler) Detail(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	d, err := h.sessions.Detail(c.Request.Context(), id, middleware.GetClaims(c).Scope())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := dto.SessionDetailResponse{
		SessionResponse: toSessionResponse(d.SessionView),
		Movements:       make([]dto.MovementResponse, 0, len(d.Movements)),
	}
	for _, m := range d.Movements {
		resp.Movements = append(resp.Movements, toMovementResponse(m))
	}
	if d.ExpectedSoFar != nil {
		v := d.ExpectedSoFar.String()
		resp.ExpectedSoFar = &v
	}
	c.JSON(http.StatusOK, resp)
}

// ReportPDF godoc
// @Summary Closing report of a CLOSED session as PDF
// @Tags caixa
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {file} file
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/caixa/sessions/{id}/report.pdf [get]
func (h *CaixaHandler) ReportPDF(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	pdf, err := h.sessions.ReportPDF(c.Request.Context(), id, middleware.GetClaims(c).Scope())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="fechamento_%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// AuditTrail godoc
// @Summary Audit entries of a session, oldest first
// @Tags caixa
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {array} dto.AuditEntryResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/caixa/sessions/{id}/audit [get]
func (h *CaixaHandler) AuditTrail(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	entries, err := h.sessions.AuditTrail(c.Request.Context(), id, middleware.GetClaims(c).Scope())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAuditEntryResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// an unparseable id can never name a session
		writeError(c, model.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// resolveLocation picks the location a request acts on: the requested one,
// else the token's bound location. A bound token may not name another location.
func resolveLocation(c *gin.Context, claims *middleware.JWTClaims, requested string) (string, bool) {
	scope := claims.Scope()
	switch {
	case requested == "" && scope == "":
		writeAPIError(c, http.StatusUnprocessableEntity, apierror.NewValidation(map[string]string{"location_id": "required"}))
		return "", false
	case requested == "":
		return scope, true
	case scope != "" && requested != scope:
		writeAPIError(c, http.StatusForbidden, apierror.New(model.CodeForbidden, "token is bound to another location"))
		return "", false
	}
	return requested, true
}

func toSessionResponse(v service.SessionView) dto.SessionResponse {
	s := v.Session
	resp := dto.SessionResponse{
		SessionID:    s.ID.String(),
		LocationID:   s.LocationID,
		Status:       string(s.Status),
		OpenedBy:     dto.ActorRef{ID: s.OpenedBy.String(), DisplayName: v.OpenedByName},
		OpenedAt:     s.OpenedAt,
		OpeningFloat: s.OpeningFloat.String(),
		OpeningNotes: s.OpeningNotes,
		ClosedAt:     s.ClosedAt,
		Notes:        s.Notes,
	}
	if s.ClosedBy != nil {
		resp.ClosedBy = &dto.ActorRef{ID: s.ClosedBy.String(), DisplayName: v.ClosedByName}
	}
	if rec := s.Reconciliation(); rec != nil {
		r := toReconciliationResponse(s.ID, *rec)
		resp.Reconciliation = &r
	}
	return resp
}

func toReconciliationResponse(sessionID uuid.UUID, r model.Reconciliation) dto.ReconciliationResponse {
	return dto.ReconciliationResponse{
		SessionID:           sessionID.String(),
		OpeningFloat:        r.OpeningFloat.String(),
		SumSales:            r.SumSales.String(),
		SumDeposits:         r.SumDeposits.String(),
		SumWithdrawals:      r.SumWithdrawals.String(),
		ExpectedCloseAmount: r.ExpectedCloseAmount.String(),
		CountedCloseAmount:  r.CountedCloseAmount.String(),
		Variance:            r.Variance.String(),
		VariancePct:         r.VariancePct.StringFixed(2),
		VarianceClass:       string(r.VarianceClass),
	}
}

func toMovementResponse(m model.Movement) dto.MovementResponse {
	return dto.MovementResponse{
		MovementID:  m.ID.String(),
		SessionID:   m.SessionID.String(),
		Seq:         m.Seq,
		Kind:        string(m.Kind),
		Amount:      m.Amount.String(),
		Description: m.Description,
		ActorID:     m.ActorID.String(),
		ReferenceID: m.ReferenceID,
		RecordedAt:  m.RecordedAt,
	}
}

func toAuditEntryResponse(e model.AuditEntry) dto.AuditEntryResponse {
	resp := dto.AuditEntryResponse{
		ID:         e.ID.String(),
		LocationID: e.LocationID,
		EventType:  string(e.EventType),
		ActorID:    e.ActorID.String(),
		Timestamp:  e.Timestamp,
	}
	if e.SessionID != nil {
		sid := e.SessionID.String()
		resp.SessionID = &sid
	}
	if len(e.Payload) > 0 {
		resp.Payload = json.RawMessage(e.Payload)
	}
	return resp
}
