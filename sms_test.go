package smsverify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func failing(c *Configuration, names ...string) {
	for _, n := range names {
		ac := c.Agents[n]
		ac.SimulateFailure = true
		c.Agents[n] = ac
	}
}

func TestSendVerifySmsFailover(t *testing.T) {
	c := testConfig()
	failing(c, "A")
	m := newTestManager(t, c, nil)

	res, err := m.SendVerifySms(context.Background(), Message{To: "27825551234", Content: "hi"})
	if err != nil {
		t.Fatalf("Expected B to take over from A, got %v", err)
	}
	if res.Agent != "B" || res.Status != Sent || res.MessageID == "" {
		t.Errorf("Unexpected result %+v", res)
	}
	sent := mockAgent(t, m, "B").Sent()
	if len(sent) != 1 || sent[0].To != "27825551234" || sent[0].TemplateID != "" {
		t.Errorf("Unexpected messages on B: %+v", sent)
	}
	if len(mockAgent(t, m, "C").Sent()) != 0 {
		t.Errorf("C should not have been used")
	}
}

func TestSendVerifySmsUsesTemplate(t *testing.T) {
	m := newTestManager(t, testConfig(), nil)
	if _, err := m.SendVerifySms(context.Background(), Message{To: "1", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	sent := mockAgent(t, m, "A").Sent()
	if len(sent) != 1 || sent[0].TemplateID != "tpl-a" {
		t.Errorf("Expected A's verify template on the message, got %+v", sent)
	}
}

func TestSendVerifySmsChainExhausted(t *testing.T) {
	c := testConfig()
	failing(c, "A", "B", "C")
	m := newTestManager(t, c, nil)

	_, err := m.SendVerifySms(context.Background(), Message{To: "1", Content: "hi"})
	if !errors.Is(err, errMockFailure) {
		t.Errorf("Expected the last agent's error, got %v", err)
	}
}

func TestSendVerifySmsAlternateDisabled(t *testing.T) {
	c := testConfig()
	c.Alternate.Enable = false
	failing(c, "A")
	m := newTestManager(t, c, nil)

	if _, err := m.SendVerifySms(context.Background(), Message{To: "1"}); err == nil {
		t.Errorf("Expected A's failure without failover")
	}
	if len(mockAgent(t, m, "B").Sent()) != 0 {
		t.Errorf("B should not be used when the alternate chain is disabled")
	}
}

func TestSendVerifySmsStartsOutsideChain(t *testing.T) {
	c := testConfig()
	c.Agents["X"] = ConfigAgent{SimulateFailure: true}
	m := newTestManager(t, c, nil)
	m.registry.RegisterAgent("X", NewMockAgent)
	m.SetDefaultAgent("X")

	res, err := m.SendVerifySms(context.Background(), Message{To: "1"})
	if err != nil || res.Agent != "A" {
		t.Errorf("Expected an agent outside the list to fall over to the first entry, got %+v, %v", res, err)
	}
}

func TestSendVerifySmsMissingTemplate(t *testing.T) {
	c := testConfig()
	failing(c, "A")
	c.Agents["B"] = ConfigAgent{RequireTemplate: true}
	m := newTestManager(t, c, nil)

	if _, err := m.SendVerifySms(context.Background(), Message{To: "1"}); !errors.Is(err, ErrMissingTemplateID) {
		t.Errorf("Expected ErrMissingTemplateID, got %v", err)
	}
}

func TestSendVerifySmsUnsupportedAlternate(t *testing.T) {
	c := testConfig()
	c.Alternate.Agents = []string{"A", "YunTongXun"}
	failing(c, "A")
	m := newTestManager(t, c, nil)

	_, err := m.SendVerifySms(context.Background(), Message{To: "1"})
	if !errors.Is(err, ErrFailover) || !errors.Is(err, ErrUnsupportedAgent) {
		t.Errorf("Expected ErrFailover wrapping ErrUnsupportedAgent, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), errMockFailure.Error()) {
		t.Errorf("Expected the failure of agent A in %q", err)
	}
	if statusForError(err) != http.StatusInternalServerError {
		t.Errorf("A broken alternate chain is a server problem, got status %v", statusForError(err))
	}
}

func TestSendAndCheckVerifyCode(t *testing.T) {
	backend := NewMemorySessionBackend()
	c := testConfig()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	m := newTestManager(t, c, NewSession(backend, "sid", time.Hour))
	m.now = fixedClock(now)

	data, err := m.SendVerifyCode(context.Background(), "082 555 1234")
	if err != nil {
		t.Fatal(err)
	}
	if !data.Sent || data.Mobile != "27825551234" || len(data.Code) != c.CodeLength {
		t.Errorf("Unexpected state after send %+v", data)
	}
	if !data.DeadlineTime.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("Expected deadline 5 minutes from now, got %v", data.DeadlineTime)
	}
	sent := mockAgent(t, m, "A").Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Content, data.Code) || !strings.Contains(sent[0].Content, "5 minutes") {
		t.Fatalf("Unexpected messages %+v", sent)
	}
	if sent[0].TemplateData["code"] != data.Code {
		t.Errorf("Expected the code in the template data, got %v", sent[0].TemplateData)
	}

	check := newTestManager(t, c, NewSession(backend, "sid", time.Hour))
	check.now = fixedClock(now.Add(time.Minute))
	if err := check.CheckVerifyCode("0825551234", data.Code); err != nil {
		t.Errorf("Expected the code to verify, got %v", err)
	}
	if err := check.CheckVerifyCode("0825551234", data.Code); !errors.Is(err, ErrNoVerification) {
		t.Errorf("Expected a verified code to be consumed, got %v", err)
	}
}

func TestCheckVerifyCodeErrors(t *testing.T) {
	backend := NewMemorySessionBackend()
	c := testConfig()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	m := newTestManager(t, c, NewSession(backend, "sid", time.Hour))
	m.now = fixedClock(now)
	if err := m.CheckVerifyCode("0825551234", "11111"); !errors.Is(err, ErrNoVerification) {
		t.Errorf("Expected ErrNoVerification before sending, got %v", err)
	}

	data, err := m.SendVerifyCode(context.Background(), "0825551234")
	if err != nil {
		t.Fatal(err)
	}
	wrong := "0" + data.Code[1:] // codes never contain 0

	if err := m.CheckVerifyCode("0825551234", wrong); !errors.Is(err, ErrCodeMismatch) {
		t.Errorf("Expected ErrCodeMismatch, got %v", err)
	}
	if err := m.CheckVerifyCode("0835551234", data.Code); !errors.Is(err, ErrMobileMismatch) {
		t.Errorf("Expected ErrMobileMismatch, got %v", err)
	}
	m.now = fixedClock(now.Add(6 * time.Minute))
	if err := m.CheckVerifyCode("0825551234", data.Code); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("Expected ErrCodeExpired, got %v", err)
	}
}

func TestCheckVerifyCodeTooManyAttempts(t *testing.T) {
	backend := NewMemorySessionBackend()
	c := testConfig()
	c.MaxCheckAttempts = 3
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	m := newTestManager(t, c, NewSession(backend, "sid", time.Hour))
	m.now = fixedClock(now)
	data, err := m.SendVerifyCode(context.Background(), "0825551234")
	if err != nil {
		t.Fatal(err)
	}
	wrong := "0" + data.Code[1:]

	// Each check uses a fresh Manager on the same session, as the HTTP layer does.
	check := func(code string) error {
		m := newTestManager(t, c, NewSession(backend, "sid", time.Hour))
		m.now = fixedClock(now)
		return m.CheckVerifyCode("0825551234", code)
	}
	for i := 0; i < 2; i++ {
		if err := check(wrong); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("Attempt %v: expected ErrCodeMismatch, got %v", i+1, err)
		}
	}
	if err := check(wrong); !errors.Is(err, ErrTooManyChecks) {
		t.Fatalf("Expected ErrTooManyChecks on the last attempt, got %v", err)
	}
	if err := check(data.Code); !errors.Is(err, ErrNoVerification) {
		t.Errorf("Expected the code to be discarded, got %v", err)
	}
	if statusForError(ErrTooManyChecks) != http.StatusTooManyRequests {
		t.Errorf("Expected status 429 for ErrTooManyChecks")
	}
}

func TestCheckVerifyCodeAttemptsAreCounted(t *testing.T) {
	backend := NewMemorySessionBackend()
	c := testConfig()
	m := newTestManager(t, c, NewSession(backend, "sid", time.Hour))
	data, err := m.SendVerifyCode(context.Background(), "0825551234")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CheckVerifyCode("0825551234", "0"+data.Code[1:]); !errors.Is(err, ErrCodeMismatch) {
		t.Fatal(err)
	}
	stored, err := m.SmsDataFromSession()
	if err != nil || stored.Attempts != 1 {
		t.Errorf("Expected one stored attempt, got %+v %v", stored, err)
	}
	if err := m.CheckVerifyCode("0825551234", data.Code); err != nil {
		t.Errorf("Expected the right code to pass after a wrong one, got %v", err)
	}
}

func TestSendVerifyCodeInvalidMobile(t *testing.T) {
	m := newTestManager(t, testConfig(), nil)
	for _, n := range []string{"", "12", "08255512345678"} {
		if _, err := m.SendVerifyCode(context.Background(), n); !errors.Is(err, ErrInvalidMobile) {
			t.Errorf("SendVerifyCode(%q): expected ErrInvalidMobile, got %v", n, err)
		}
	}
	if len(mockAgent(t, m, "A").Sent()) != 0 {
		t.Errorf("Nothing should be sent to an invalid number")
	}
}

func TestSendVerifyCodeChosenRule(t *testing.T) {
	m := newTestManager(t, testConfig(), nil)
	m.SetRule(DefaultCheckField, "local_only")
	if _, err := m.SendVerifyCode(context.Background(), "27825551234"); !errors.Is(err, ErrInvalidMobile) {
		t.Errorf("Expected the local_only rule to reject an international number, got %v", err)
	}
	if _, err := m.SendVerifyCode(context.Background(), "0825551234"); err != nil {
		t.Errorf("Expected the local_only rule to accept a local number, got %v", err)
	}
}

func TestSendVerifyCodeRateLimited(t *testing.T) {
	m := newTestManager(t, testConfig(), nil)
	m.limiter = NewMobileLimiter(1, 1)
	m.now = fixedClock(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))

	if _, err := m.SendVerifyCode(context.Background(), "0825551234"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SendVerifyCode(context.Background(), "082 555 1234"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if _, err := m.SendVerifyCode(context.Background(), "0835551234"); err != nil {
		t.Errorf("Expected another number to be allowed, got %v", err)
	}
}

func TestSendVerifyCodeQueued(t *testing.T) {
	c := testConfig()
	c.SmsWorker = QueueWorkerName
	c.SmsSendQueue = "sms"
	m := newTestManager(t, c, nil)
	q := NewQueueWorker(10, m.log)
	m.registry.RegisterWorker(QueueWorkerName, q)
	q.Start()

	data, err := m.SendVerifyCode(context.Background(), "0825551234")
	if err != nil {
		t.Fatal(err)
	}
	q.Stop()

	sent := mockAgent(t, m, "A").Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Content, data.Code) {
		t.Errorf("Expected the queued send to run, got %+v", sent)
	}
}

func TestSendVerifyCodeRecordsSends(t *testing.T) {
	c := testConfig()
	failing(c, "A")
	m := newTestManager(t, c, nil)
	rec := &recordingSendLog{}
	m.sendLog = rec

	if _, err := m.SendVerifyCode(context.Background(), "0825551234"); err != nil {
		t.Fatal(err)
	}
	if len(rec.records) != 2 {
		t.Fatalf("Expected two send attempts, got %+v", rec.records)
	}
	if rec.records[0].Agent != "A" || rec.records[0].Status != Failed || rec.records[0].Description == "" {
		t.Errorf("Unexpected first attempt %+v", rec.records[0])
	}
	if rec.records[1].Agent != "B" || rec.records[1].Status != Sent || rec.records[1].Mobile != "27825551234" {
		t.Errorf("Unexpected second attempt %+v", rec.records[1])
	}
}

type recordingSendLog struct {
	records []SendRecord
}

func (r *recordingSendLog) LogSend(rec SendRecord) error {
	r.records = append(r.records, rec)
	return nil
}
