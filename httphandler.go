package smsverify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type verifyCodeRequest struct {
	Mobile string `json:"mobile"`
	Agent  string `json:"agent"` // Optional, overrides the default agent for this request
	Rule   string `json:"rule"`  // Optional, chooses a different rule for the mobile field
}

type verifyCodeResponse struct {
	Sent              bool   `json:"sent"`
	Mobile            string `json:"mobile"`
	Deadline          string `json:"deadline"`
	Agent             string `json:"agent"`
	Queued            bool   `json:"queued"` // Sent was accepted by the queue, and may still fail
	StatusDescription string `json:"statusDescription"`
}

type checkCodeRequest struct {
	Mobile string `json:"mobile"`
	Code   string `json:"code"`
}

type checkCodeResponse struct {
	Verified          bool   `json:"verified"`
	StatusDescription string `json:"statusDescription"`
}

type agentsResponse struct {
	Default   string          `json:"default"`
	Agents    []string        `json:"agents"`
	Workers   []string        `json:"workers"`
	Alternate ConfigAlternate `json:"alternate"`
}

// StartServer starts the HTTP server on the configured port.
func (s *VerifyServer) StartServer() error {
	address := fmt.Sprintf(":%v", s.Config.HTTPPort)

	s.Log.Infof("SMS verification is listening on %v", address)
	err := http.ListenAndServe(address, s.Router())
	if err != nil {
		s.Log.Errorf("ListenAndServe:%v\n", err)
		return err
	}
	return nil
}

// Router returns the routes of the verification API.
func (s *VerifyServer) Router() *httprouter.Router {
	router := httprouter.New()
	router.GET("/ping", s.handlePing)
	router.GET("/agents", s.handleAgents)
	router.POST("/verifycode", s.handleSendVerifyCode)
	router.POST("/verifycode/check", s.handleCheckVerifyCode)
	router.Handler("GET", "/metrics", s.Metrics.Handler())
	return router
}

// NewManager creates the Manager for one request, bound to the session sid.
func (s *VerifyServer) NewManager(sid string) *Manager {
	var session SessionStore
	if s.Sessions != nil && sid != "" {
		session = NewSession(s.Sessions, sid, s.sessionLifetime())
	}
	m := NewManager(&s.Config, s.Registry, s.Log, session)
	m.limiter = s.Limiter
	m.metrics = s.Metrics
	if s.DB.db != nil {
		m.sendLog = &s.DB
	}
	return m
}

func (s *VerifyServer) sessionLifetime() time.Duration {
	d, err := time.ParseDuration(s.Config.Session.Lifetime)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultSessionLifetime)
	}
	return d
}

// sessionID returns the session id from the cookie, creating a new session if there is none.
func (s *VerifyServer) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(s.Config.Session.CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	sid, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.Session.CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid, nil
}

// handleSendVerifyCode expects a JSON object with the mobile number to send a code to.
func (s *VerifyServer) handleSendVerifyCode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ok, _ := userHasPermission(s, r); !ok {
		http.Error(w, "User unauthorized", http.StatusUnauthorized)
		return
	}

	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mobile == "" {
		http.Error(w, "Invalid mobile json data", http.StatusNotAcceptable)
		return
	}

	sid, err := s.sessionID(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m := s.NewManager(sid)

	if req.Agent != "" {
		m.SetDefaultAgent(req.Agent)
	}
	if req.Rule != "" {
		if !m.HasRule(DefaultCheckField, req.Rule) {
			http.Error(w, fmt.Sprintf("Unknown rule %v", req.Rule), http.StatusNotAcceptable)
			return
		}
		m.SetRule(DefaultCheckField, req.Rule)
	}

	s.Log.Debugf("Verification code requested for %v", req.Mobile)
	data, err := m.SendVerifyCode(r.Context(), req.Mobile)

	resp := verifyCodeResponse{
		Sent:     data.Sent,
		Mobile:   data.Mobile,
		Deadline: deadlineOf(data),
		Agent:    m.DefaultAgent(),
	}
	status := http.StatusOK
	if err == nil {
		resp.Queued = s.queuesSends()
	} else {
		s.Log.Infof("Verification code to %v not sent: %v", req.Mobile, err)
		resp.StatusDescription = err.Error()
		status = statusForError(err)
	}
	writeJSON(w, status, resp)
}

// handleCheckVerifyCode compares the code the user typed in with the code sent in this session.
func (s *VerifyServer) handleCheckVerifyCode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ok, _ := userHasPermission(s, r); !ok {
		http.Error(w, "User unauthorized", http.StatusUnauthorized)
		return
	}

	var req checkCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mobile == "" || req.Code == "" {
		http.Error(w, "Invalid mobile or code json data", http.StatusNotAcceptable)
		return
	}

	sid, err := s.sessionID(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := checkCodeResponse{Verified: true}
	status := http.StatusOK
	if err = s.NewManager(sid).CheckVerifyCode(req.Mobile, req.Code); err != nil {
		resp = checkCodeResponse{Verified: false, StatusDescription: err.Error()}
		status = statusForError(err)
	}
	writeJSON(w, status, resp)
}

func (s *VerifyServer) handleAgents(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	writeJSON(w, http.StatusOK, agentsResponse{
		Default:   s.Config.Agent,
		Agents:    s.Registry.AgentNames(),
		Workers:   s.Registry.WorkerNames(),
		Alternate: s.Config.Alternate,
	})
}

func (s *VerifyServer) handlePing(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "{\"Timestamp\": %v}", time.Now().Unix())
}

func (s *VerifyServer) queuesSends() bool {
	return s.Config.SmsWorker == QueueWorkerName && s.Config.SmsSendQueue != ""
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrFailover):
		return http.StatusInternalServerError
	case errors.Is(err, ErrInvalidMobile),
		errors.Is(err, ErrNoVerification),
		errors.Is(err, ErrMobileMismatch),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeMismatch):
		return http.StatusNotAcceptable
	case errors.Is(err, ErrUnsupportedAgent):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTooManyChecks):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}
