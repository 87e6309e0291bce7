package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"workclock/internal/apperr"
	"workclock/internal/attendance"
	"workclock/internal/audit"
	"workclock/internal/auth"
	"workclock/internal/credential"
	"workclock/internal/enrollment"
	"workclock/internal/httpmiddleware"
	"workclock/internal/metrics"
	"workclock/internal/model"
)

// Auditor records one entry per failed operation.
type Auditor interface {
	Record(ctx context.Context, c audit.Context)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// TokenConfig controls the access token returned on login.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
	Required   bool
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Credentials *credential.Service
	Enrollment  *enrollment.Service
	Attendance  *attendance.Service
	Audit       Auditor
	Metrics     *metrics.Metrics
	Tokens      TokenConfig
	Checks      map[string]HealthCheck
	Log         *zap.Logger
}

type Handler struct {
	credentials *credential.Service
	enrollment  *enrollment.Service
	attendance  *attendance.Service
	audit       Auditor
	metrics     *metrics.Metrics
	tokens      TokenConfig
	checks      map[string]HealthCheck
	log         *zap.Logger
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Handler{
		credentials: d.Credentials,
		enrollment:  d.Enrollment,
		attendance:  d.Attendance,
		audit:       d.Audit,
		metrics:     d.Metrics,
		tokens:      d.Tokens,
		checks:      d.Checks,
		log:         d.Log,
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/check-user", h.CheckUser)
	api.POST("/add-photo", h.AddPhoto)

	clock := api.Group("", auth.OptionalBearer(h.tokens.SigningKey, h.tokens.Issuer, h.tokens.Required, h.unauthorized))
	clock.POST("/clock-in", h.ClockIn)
	clock.POST("/clock-out", h.ClockOut)
	clock.GET("/attendance/:userId/state", h.State)
	clock.GET("/attendance/:userId/events", h.Events)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Credentials ----------

func (h *Handler) Register(c *gin.Context) {
	req, ok := h.bind(c, apperr.ErrInvalidInput)
	if !ok {
		return
	}
	_, err := h.credentials.Register(c.Request.Context(),
		req.str("name"), req.str("email"), req.str("credentialDigest", "passwordHash"))
	if err != nil {
		h.fail(c, req, nil, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account created!"})
}

func (h *Handler) Login(c *gin.Context) {
	req, ok := h.bind(c, apperr.ErrInvalidInput)
	if !ok {
		return
	}
	id, err := h.credentials.Authenticate(c.Request.Context(), req.str("email"), req.str("credentialDigest", "passwordHash"))
	if err != nil {
		h.fail(c, req, nil, err)
		return
	}
	tok, err := auth.Issue(id.UserID, id.UserName, h.tokens.Issuer, h.tokens.SigningKey, h.tokens.TTL)
	if err != nil {
		h.fail(c, req, &id.UserID, apperr.Store(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":      id.UserID,
		"userName":    id.UserName,
		"accessToken": tok.Token,
		"expiresAt":   tok.ExpiresAt.Unix(),
	})
}

// ---------- Enrollment ----------

// CheckUser never fails the request: any lookup error is audited and reported
// as a user that does not exist.
func (h *Handler) CheckUser(c *gin.Context) {
	req, err := decode(c)
	if err != nil {
		h.record(c, req, nil, http.StatusOK, apperr.ErrInvalidInput)
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	st, err := h.enrollment.CheckUser(c.Request.Context(), req.str("email"), req.str("credentialDigest", "passwordHash"))
	if err != nil {
		h.record(c, req, nil, http.StatusOK, err)
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	resp := gin.H{"exists": st.Exists}
	if !st.EnrolledPhoto.IsZero() {
		resp["photo"] = st.EnrolledPhoto.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddPhoto(c *gin.Context) {
	req, ok := h.bind(c, apperr.ErrInvalidInput)
	if !ok {
		return
	}
	if err := h.enrollment.AddPhoto(c.Request.Context(), req.str("email"), req.photo("photo")); err != nil {
		h.fail(c, req, nil, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Photo saved!"})
}

// ---------- Attendance ----------

func (h *Handler) ClockIn(c *gin.Context) {
	req, ok := h.bind(c, apperr.ErrMissingFields)
	if !ok {
		return
	}
	userID := req.userID()
	if !h.ownsUser(c, req, userID) {
		return
	}
	start := time.Now()
	evt, err := h.attendance.ClockIn(c.Request.Context(), attendance.ClockInRequest{
		UserID:    userID,
		Timestamp: req.str("clockedInTime", "timestamp"),
		Latitude:  req.float("latitude"),
		Longitude: req.float("longitude"),
		Photo:     req.photo("photo"),
	})
	h.clocked(c, req, userID, start, evt, err, "Clock-in recorded!")
}

func (h *Handler) ClockOut(c *gin.Context) {
	req, ok := h.bind(c, apperr.ErrMissingFields)
	if !ok {
		return
	}
	userID := req.userID()
	if !h.ownsUser(c, req, userID) {
		return
	}
	start := time.Now()
	evt, err := h.attendance.ClockOut(c.Request.Context(), attendance.ClockOutRequest{
		UserID:    userID,
		Timestamp: req.str("clockedOutTime", "timestamp"),
		Photo:     req.photo("photo"),
	})
	h.clocked(c, req, userID, start, evt, err, "Clock-out recorded!")
}

func (h *Handler) clocked(c *gin.Context, req body, userID int64, start time.Time, evt model.ClockEvent, err error, msg string) {
	if h.metrics != nil {
		h.metrics.ObserveClockRecord(start)
	}
	if err != nil {
		h.fail(c, req, optionalID(userID), err)
		return
	}
	if h.metrics != nil {
		h.metrics.EventRecorded(string(evt.Type))
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "eventId": evt.ID})
}

// unauthorized audits a refused bearer token like any other failure. The
// body has not been read yet, so the snapshot is empty.
func (h *Handler) unauthorized(c *gin.Context, err error) {
	h.fail(c, nil, nil, err)
}

// ownsUser rejects a bearer token issued to someone else. Requests without a
// token are left to the OptionalBearer policy.
func (h *Handler) ownsUser(c *gin.Context, req body, userID int64) bool {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || userID == 0 {
		return true
	}
	if sub, err := claims.UserID(); err == nil && sub == userID {
		return true
	}
	h.fail(c, req, &userID, apperr.ErrForbidden)
	return false
}

func (h *Handler) State(c *gin.Context) {
	userID, ok := h.pathUserID(c)
	if !ok {
		return
	}
	state, err := h.attendance.State(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, nil, &userID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "state": state})
}

func (h *Handler) Events(c *gin.Context) {
	userID, ok := h.pathUserID(c)
	if !ok {
		return
	}
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	events, err := h.attendance.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.fail(c, nil, &userID, err)
		return
	}
	if events == nil {
		events = []model.ClockEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) pathUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, body{"userId": c.Param("userId")}, nil, apperr.ErrInvalidInput)
		return 0, false
	}
	claims, ok := auth.ClaimsFrom(c)
	if ok {
		if sub, err := claims.UserID(); err != nil || sub != id {
			h.fail(c, nil, &id, apperr.ErrForbidden)
			return 0, false
		}
	}
	return id, true
}

// ---------- failure path ----------

// bind decodes the JSON body. A malformed body is audited and answered with
// onMalformed.
func (h *Handler) bind(c *gin.Context, onMalformed *apperr.Error) (body, bool) {
	req, err := decode(c)
	if err != nil {
		h.fail(c, nil, nil, onMalformed)
		return nil, false
	}
	return req, true
}

func decode(c *gin.Context) (body, error) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	c.Set(httpmiddleware.AuditRequestKey, raw)
	return body(raw), nil
}

// fail audits err exactly once and writes the classified response.
func (h *Handler) fail(c *gin.Context, req body, userID *int64, err error) {
	ae := apperr.From(err)
	if ae.Status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	h.record(c, req, userID, ae.Status, err)
	if h.metrics != nil {
		h.metrics.Rejected(routeLabel(c), ae.Code)
	}
	c.AbortWithStatusJSON(ae.Status, gin.H{"message": ae.Message, "code": ae.Code})
}

func (h *Handler) record(c *gin.Context, req body, userID *int64, status int, err error) {
	if h.audit == nil {
		return
	}
	h.audit.Record(c.Request.Context(), audit.Context{
		Endpoint:   c.Request.URL.Path,
		Method:     c.Request.Method,
		Request:    req,
		Err:        err,
		UserID:     userID,
		StatusCode: &status,
	})
}

// routeLabel is the route template, so ids in the path do not create new
// metric series.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
