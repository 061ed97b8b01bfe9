package smsverify

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidMobile  = errors.New("invalid mobile number")
	ErrRateLimited    = errors.New("too many verification codes requested")
	ErrNoVerification = errors.New("no verification code was sent")
	ErrMobileMismatch = errors.New("mobile number does not match the one the code was sent to")
	ErrCodeExpired    = errors.New("verification code has expired")
	ErrCodeMismatch   = errors.New("verification code does not match")
	ErrTooManyChecks  = errors.New("too many wrong verification codes, request a new one")
	ErrFailover       = errors.New("could not fall over to the next agent")
)

// SendRecord is one attempt to send an SMS through an agent.
type SendRecord struct {
	Agent       string
	Mobile      string
	Queue       string
	MessageID   string
	Status      string
	Description string
}

// SendLogger keeps a record of every send attempt.
type SendLogger interface {
	LogSend(r SendRecord) error
}

// SendVerifySms sends msg through the default agent. When an agent fails and the alternate
// chain is enabled, the next agent on the chain is tried, until the chain runs out.
// Every attempt carries the verify template of the agent making it.
func (m *Manager) SendVerifySms(ctx context.Context, msg Message) (SendResult, error) {
	name := m.DefaultAgent()
	tried := map[string]bool{}
	var lastErr error

	for {
		tried[name] = true
		c, agent, err := m.resolveAgent(name)
		if err != nil {
			if lastErr != nil {
				return SendResult{}, fmt.Errorf("%w %v: %w (after %v)", ErrFailover, name, err, lastErr)
			}
			return SendResult{}, err
		}

		attempt := msg
		attempt.TemplateID = c.VerifySmsTemplateId
		if c.RequireTemplate && attempt.TemplateID == "" {
			return SendResult{}, fmt.Errorf("%w: agent %v", ErrMissingTemplateID, name)
		}

		res, sendErr := agent.SendSms(ctx, attempt)
		m.recordSend(c, msg.To, res, sendErr)
		if sendErr == nil {
			return res, nil
		}

		m.log.Warnf("Agent %v failed to send to %v: %v", name, msg.To, sendErr)
		next := c.NextAgentName
		if !c.NextAgentEnable || next == "" || tried[next] {
			return res, sendErr
		}
		m.log.Infof("Falling over from agent %v to %v", name, next)
		m.metrics.failover(name, next)
		lastErr = fmt.Errorf("agent %v: %w", name, sendErr)
		name = next
	}
}

func (m *Manager) resolveAgent(name string) (AgentConfig, Agent, error) {
	c, err := m.AgentConfig(name)
	if err != nil {
		return AgentConfig{}, nil, err
	}
	agent, err := m.Agent(name)
	if err != nil {
		return AgentConfig{}, nil, err
	}
	return c, agent, nil
}

func (m *Manager) recordSend(c AgentConfig, mobile string, res SendResult, err error) {
	r := SendRecord{
		Agent:     c.Name,
		Mobile:    mobile,
		Queue:     c.SmsSendQueue,
		MessageID: res.MessageID,
		Status:    res.Status,
	}
	if err != nil {
		r.Status = Failed
		r.Description = err.Error()
	} else if r.Status == "" {
		r.Status = Sent
	}
	m.metrics.sent(c.Name, r.Status)
	if m.sendLog == nil {
		return
	}
	if lerr := m.sendLog.LogSend(r); lerr != nil {
		m.log.Errorf("Send log: %v", lerr)
	}
}

// SendVerifyCode validates mobile against the chosen "mobile" rule, sends it a fresh code
// through the configured worker and records the sent state in memory and in the session.
// When the worker queues the send, Sent means the send was accepted by the queue: a failure
// of the whole agent chain afterwards is only visible in the log, the send log and metrics.
func (m *Manager) SendVerifyCode(ctx context.Context, mobile string) (SmsData, error) {
	if m.IsCheck(DefaultCheckField) {
		rule, err := m.Rule(DefaultCheckField)
		if err != nil {
			return SmsData{}, err
		}
		if err = m.validator.Validate(DefaultCheckField, mobile, rule); err != nil {
			return SmsData{}, err
		}
	}
	if n := NormalizeMobile(mobile, m.config.Countries); n != "" {
		mobile = n
	}

	now := m.now()
	if !m.limiter.Allow(mobile, now) {
		return SmsData{}, ErrRateLimited
	}

	code, err := m.GenerateCode(0, "")
	if err != nil {
		return SmsData{}, err
	}
	m.metrics.codeGenerated()

	minutes := strconv.Itoa(m.config.CodeValidTime)
	msg := Message{
		To:      mobile,
		Content: strings.NewReplacer("{code}", code, "{minutes}", minutes).Replace(m.VerifySmsContent()),
		TemplateData: map[string]string{
			"code":    code,
			"minutes": minutes,
		},
	}

	c, err := m.AgentConfig(m.DefaultAgent())
	if err != nil {
		return SmsData{}, err
	}
	worker, _ := m.registry.Worker(c.SmsWorker)
	err = worker.Dispatch(ctx, c.SmsSendQueue, func(ctx context.Context) error {
		_, err := m.SendVerifySms(ctx, msg)
		return err
	})
	if err != nil {
		return SmsData{}, err
	}

	data := m.SmsData()
	data.Sent = true
	data.Mobile = mobile
	data.Code = code
	data.DeadlineTime = now.Add(m.CodeValidTime())
	data.Attempts = 0
	m.SetSmsData(data)

	if m.session != nil {
		if err = m.StoreSmsDataToSession(); err != nil {
			return data, err
		}
	}
	return data, nil
}

// CheckVerifyCode compares a code typed in by the user with the one stored in the session.
// A matching code is consumed. After MaxCheckAttempts wrong codes the code is discarded,
// and a new one must be requested.
func (m *Manager) CheckVerifyCode(mobile, code string) error {
	data, err := m.SmsDataFromSession()
	if err != nil {
		return err
	}
	if !data.Sent || data.Code == "" {
		return ErrNoVerification
	}
	if n := NormalizeMobile(mobile, m.config.Countries); n != "" {
		mobile = n
	}
	if mobile != data.Mobile {
		return ErrMobileMismatch
	}
	if m.now().After(data.DeadlineTime) {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(data.Code)) != 1 {
		limit := m.config.MaxCheckAttempts
		if limit <= 0 {
			limit = defaultMaxCheckAttempts
		}
		data.Attempts++
		if data.Attempts >= limit {
			m.log.Infof("Discarding verification code of %v after %v wrong attempts", data.Mobile, data.Attempts)
			m.init()
			if err = m.ForgetSmsDataFromSession(); err != nil {
				return err
			}
			return ErrTooManyChecks
		}
		m.SetSmsData(data)
		if err = m.StoreSmsDataToSession(); err != nil {
			return err
		}
		return ErrCodeMismatch
	}

	m.SetSmsData(data)
	return m.ForgetSmsDataFromSession()
}

// deadlineOf is used by the HTTP layer to report when a code runs out.
func deadlineOf(d SmsData) string {
	if d.DeadlineTime.IsZero() {
		return ""
	}
	return d.DeadlineTime.UTC().Format(time.RFC3339)
}
