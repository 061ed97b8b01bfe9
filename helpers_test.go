package smsverify

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/IMQS/log"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(filepath.Join(t.TempDir(), "smsverify.log"))
}

// testConfig has three mock agents A, B and C on the alternate list, in that order.
func testConfig() *Configuration {
	c := &Configuration{
		Agent: "A",
		Agents: map[string]ConfigAgent{
			"A": {VerifySmsTemplateId: "tpl-a"},
			"B": {},
			"C": {},
		},
		SmsWorker: SmsWorkerName,
		Alternate: ConfigAlternate{
			Enable: true,
			Agents: []string{"A", "B", "C"},
		},
		Rules: map[string]RuleSet{
			"mobile": {
				IsCheck:    true,
				ChooseRule: "check_mobile",
				Rules: map[string]string{
					"check_mobile": "required|mobile",
					"local_only":   "required|regex:^0",
				},
			},
		},
		Countries: []string{"ZA"},
	}
	c.applyDefaults()
	return c
}

func testRegistry() *Registry {
	r := NewRegistry()
	r.RegisterWorker(SmsWorkerName, SmsWorker{})
	for _, name := range []string{"A", "B", "C"} {
		r.RegisterAgent(name, NewMockAgent)
	}
	return r
}

func newTestManager(t *testing.T, c *Configuration, session SessionStore) *Manager {
	t.Helper()
	return NewManager(c, testRegistry(), testLogger(t), session)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mockAgent(t *testing.T, m *Manager, name string) *MockAgent {
	t.Helper()
	a, err := m.Agent(name)
	if err != nil {
		t.Fatalf("Agent(%v): %v", name, err)
	}
	mock, ok := a.(*MockAgent)
	if !ok {
		t.Fatalf("Agent(%v) is %T, not a mock", name, a)
	}
	return mock
}
