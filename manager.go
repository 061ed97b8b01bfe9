package smsverify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IMQS/log"
	jsoniter "github.com/json-iterator/go"
)

// DefaultCheckField is the field most callers ask IsCheck about.
const DefaultCheckField = "mobile"

var (
	ErrRuleNotFound      = errors.New("rule not found")
	ErrUnsupportedAgent  = errors.New("agent not supported")
	ErrUnsupportedWorker = errors.New("worker not supported")
	ErrMissingTemplateID = errors.New("verify sms template id missing")
)

// SmsData is the verification state of one session.
type SmsData struct {
	Sent         bool               `json:"sent"`
	Mobile       string             `json:"mobile"`
	Code         string             `json:"code"`
	DeadlineTime time.Time          `json:"deadline_time"`
	Attempts     int                `json:"attempts"` // Wrong codes entered for this send
	Rules        map[string]RuleSet `json:"rules"`
}

// RuleSet holds the validation rules of one input field and which of them is active.
type RuleSet struct {
	IsCheck    bool              `json:"is_check" yaml:"isCheck"`
	ChooseRule string            `json:"choose_rule" yaml:"chooseRule"`
	Rules      map[string]string `json:"rules" yaml:"rules"`
}

// Manager is the request scoped facade over verification state, rules and agents.
// It is not meant to be shared between requests.
type Manager struct {
	config    *Configuration
	registry  *Registry
	log       *log.Logger
	session   SessionStore
	validator RuleValidator
	limiter   *MobileLimiter
	sendLog   SendLogger
	metrics   *Metrics
	now       func() time.Time

	defaultAgent string
	smsData      SmsData

	// agents may be resolved from a queued send while the request still runs
	agentsLock sync.Mutex
	agents     map[string]Agent
}

// NewManager creates a Manager with the default state: nothing sent, and the rules from config.
// session may be nil when the caller never pushes or pulls state.
func NewManager(c *Configuration, registry *Registry, lg *log.Logger, session SessionStore) *Manager {
	m := &Manager{
		config:       c,
		registry:     registry,
		log:          lg,
		session:      session,
		validator:    MobileRuleValidator{Countries: c.Countries},
		now:          time.Now,
		defaultAgent: c.Agent,
		agents:       map[string]Agent{},
	}
	m.init()
	return m
}

func (m *Manager) init() {
	m.smsData = SmsData{
		Sent:   false,
		Mobile: "",
		Code:   "",
		Rules:  copyRules(m.config.Rules),
	}
}

// SmsData returns the current verification state.
func (m *Manager) SmsData() SmsData {
	return m.smsData
}

// SetSmsData replaces the verification state.
func (m *Manager) SetSmsData(data SmsData) {
	m.smsData = data
}

// StoreSmsDataToSession writes the current state to the session under the configured session key.
func (m *Manager) StoreSmsDataToSession() error {
	if m.session == nil {
		return errNoSession
	}
	raw, err := jsoniter.Marshal(m.smsData)
	if err != nil {
		return err
	}
	return m.session.Put(m.SessionKey(), raw)
}

// SmsDataFromSession reads the state stored by StoreSmsDataToSession.
// An empty SmsData is returned when nothing is stored.
func (m *Manager) SmsDataFromSession() (SmsData, error) {
	var data SmsData
	if m.session == nil {
		return data, errNoSession
	}
	raw, found, err := m.session.Get(m.SessionKey())
	if err != nil || !found {
		return data, err
	}
	if err = jsoniter.Unmarshal(raw, &data); err != nil {
		return SmsData{}, fmt.Errorf("decoding session %v: %w", m.SessionKey(), err)
	}
	return data, nil
}

// ForgetSmsDataFromSession removes the stored state from the session.
func (m *Manager) ForgetSmsDataFromSession() error {
	if m.session == nil {
		return errNoSession
	}
	return m.session.Forget(m.SessionKey())
}

// HasRule reports whether a rule called ruleName exists for field.
func (m *Manager) HasRule(field, ruleName string) bool {
	rs, ok := m.smsData.Rules[field]
	if !ok {
		return false
	}
	_, ok = rs.Rules[ruleName]
	return ok
}

// Rule returns the definition of the rule currently chosen for field.
func (m *Manager) Rule(field string) (string, error) {
	rs, ok := m.smsData.Rules[field]
	if !ok {
		return "", fmt.Errorf("%w: no rules for field %v", ErrRuleNotFound, field)
	}
	def, ok := rs.Rules[rs.ChooseRule]
	if !ok {
		return "", fmt.Errorf("%w: field %v has no rule %q", ErrRuleNotFound, field, rs.ChooseRule)
	}
	return def, nil
}

// SetRule chooses ruleName as the active rule of field and returns the updated state.
func (m *Manager) SetRule(field, ruleName string) SmsData {
	data := m.SmsData()
	rules := copyRules(data.Rules)
	rs := rules[field]
	rs.ChooseRule = ruleName
	rules[field] = rs
	data.Rules = rules
	m.SetSmsData(data)
	return data
}

// IsCheck reports whether validation is enabled for field. Most callers pass DefaultCheckField.
func (m *Manager) IsCheck(field string) bool {
	return m.smsData.Rules[field].IsCheck
}

// CodeValidTime is how long a sent code stays valid.
func (m *Manager) CodeValidTime() time.Duration {
	return time.Duration(m.config.CodeValidTime) * time.Minute
}

func (m *Manager) SessionKey() string {
	return m.config.SessionKey
}

// VerifySmsContent is the message template. {code} and {minutes} are substituted when sending.
func (m *Manager) VerifySmsContent() string {
	return m.config.VerifySmsContent
}

// VerifySmsTemplateID returns the verification template of an agent, or of the default agent
// when agentName is empty.
func (m *Manager) VerifySmsTemplateID(agentName string) (string, error) {
	if agentName == "" {
		agentName = m.DefaultAgent()
	}
	ac, ok := m.config.Agents[agentName]
	if !ok || ac.VerifySmsTemplateId == "" {
		return "", fmt.Errorf("%w: agent %v", ErrMissingTemplateID, agentName)
	}
	return ac.VerifySmsTemplateId, nil
}

func copyRules(src map[string]RuleSet) map[string]RuleSet {
	dst := make(map[string]RuleSet, len(src))
	for field, rs := range src {
		rules := make(map[string]string, len(rs.Rules))
		for k, v := range rs.Rules {
			rules[k] = v
		}
		rs.Rules = rules
		dst[field] = rs
	}
	return dst
}
