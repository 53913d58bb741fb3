// Package api exposes the payment confirmation flow over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/clinichq/paymentflow/internal/artifact"
	"github.com/clinichq/paymentflow/internal/config"
	"github.com/clinichq/paymentflow/internal/gateway"
	"github.com/clinichq/paymentflow/internal/monitor"
	"github.com/clinichq/paymentflow/internal/policy"
	"github.com/clinichq/paymentflow/internal/registry"
	"github.com/clinichq/paymentflow/internal/reporting"
	"github.com/clinichq/paymentflow/internal/session"
)

// Server wires the session layer to HTTP handlers.
type Server struct {
	cfg      *config.Config
	gw       gateway.Client
	fetcher  artifact.Fetcher
	sessions *registry.Registry
	policy   *policy.InitiationPolicy
	contract *monitor.ContractMonitor
	activity *reporting.ActivityLog
	log      zerolog.Logger
}

// NewServer builds a Server from its collaborators.
func NewServer(
	cfg *config.Config,
	gw gateway.Client,
	fetcher artifact.Fetcher,
	sessions *registry.Registry,
	pol *policy.InitiationPolicy,
	contract *monitor.ContractMonitor,
	activity *reporting.ActivityLog,
	log zerolog.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		gw:       gw,
		fetcher:  fetcher,
		sessions: sessions,
		policy:   pol,
		contract: contract,
		activity: activity,
		log:      log,
	}
}

// Routes returns the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("paymentflow"))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/payments", s.createPayment)
	r.GET("/payments/:id", s.getPayment)
	r.POST("/payments/:id/initiate", s.initiatePayment)
	r.POST("/payments/:id/poll", s.startPolling)
	r.POST("/payments/:id/check", s.checkNow)
	r.POST("/payments/:id/restart", s.restartPayment)
	r.DELETE("/payments/:id", s.disposePayment)
	r.GET("/payments/:id/artifacts", s.getArtifacts)
	r.GET("/report", s.getReport)

	return r
}

type createPaymentRequest struct {
	InvoiceID      string `json:"invoiceId"`
	Provider       string `json:"provider"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ReturnURL      string `json:"returnUrl"`
	CancelURL      string `json:"cancelUrl"`
	MaxAttempts    int    `json:"maxAttempts"`
	PollIntervalMs int    `json:"pollIntervalMs"`
}

func (s *Server) createPayment(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read request body"})
		return
	}

	valid, violations, err := s.contract.Validate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request is not valid JSON"})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
		return
	}

	var req createPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format: " + err.Error()})
		return
	}

	decision, err := s.policy.Evaluate(policy.Request{
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Provider:  req.Provider,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("policy evaluation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "policy evaluation failed"})
		return
	}
	if !decision.Allow {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "initiation blocked by policy: " + decision.Reason})
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.cfg.CancelURL
	}
	sessCfg := session.Config{
		InvoiceID:    req.InvoiceID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Provider:     gateway.Provider(req.Provider),
		ReturnURL:    returnURL,
		CancelURL:    cancelURL,
		MaxAttempts:  s.cfg.MaxAttempts,
		PollInterval: s.cfg.PollInterval(),
		CheckTimeout: s.cfg.CheckTimeout(),
		OnChange:     s.activity.Observe,
		Logger:       s.log,
	}
	if req.MaxAttempts > 0 {
		sessCfg.MaxAttempts = req.MaxAttempts
	}
	if req.PollIntervalMs > 0 {
		sessCfg.PollInterval = time.Duration(req.PollIntervalMs) * time.Millisecond
	}

	sess, err := session.New(s.gw, s.fetcher, sessCfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.sessions.Add(sess)

	if err := sess.Initiate(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   err.Error(),
			"session": sess.Snapshot(),
		})
		return
	}
	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) getPayment(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) initiatePayment(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.Initiate(c.Request.Context()); err != nil {
		s.renderSessionError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) startPolling(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.StartPolling(); err != nil {
		s.renderSessionError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) checkNow(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.CheckNow(); err != nil {
		s.renderSessionError(c, sess, err)
		return
	}
	// CheckNow resolves on this goroutine, so the snapshot already
	// reflects the check's outcome.
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) restartPayment(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.Restart(); err != nil {
		s.renderSessionError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) disposePayment(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.sessions.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.sessions.Remove(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) getArtifacts(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	if snap.State != session.StateSucceeded {
		c.JSON(http.StatusConflict, gin.H{"error": "payment has not succeeded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"artifacts": snap.Artifacts,
		"warning":   snap.ArtifactWarning,
	})
}

func (s *Server) getReport(c *gin.Context) {
	c.JSON(http.StatusOK, s.activity.GenerateRetrospective())
}

func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return sess, true
}

func (s *Server) renderSessionError(c *gin.Context, sess *session.Session, err error) {
	var invalid *session.InvalidTransitionError
	switch {
	case errors.Is(err, session.ErrDisposed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "session": sess.Snapshot()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "session": sess.Snapshot()})
	}
}
