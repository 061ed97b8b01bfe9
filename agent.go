package smsverify

import (
	"context"
	"fmt"
	"sort"

	"github.com/IMQS/log"
)

const (
	Delivered = "delivered"
	Failed    = "failed"
	Sent      = "sent"
)

// Agent sends an SMS through one vendor.
type Agent interface {
	Name() string
	SendSms(ctx context.Context, msg Message) (SendResult, error)
}

// StatusAgent is an Agent that can be asked whether a message it sent was delivered.
type StatusAgent interface {
	Agent
	MessageStatus(ctx context.Context, messageID string) (status, description string, err error)
}

// Message is a single SMS to one mobile number.
type Message struct {
	To           string
	Content      string
	TemplateID   string            // Optional, for vendors that send from a stored template
	TemplateData map[string]string // Values substituted into the template
}

// SendResult is what an agent reports back after accepting a message.
type SendResult struct {
	Agent     string
	MessageID string // The ID assigned by the SMS vendor
	Status    string
}

// AgentConfig is the agent's own settings merged with the shared send settings.
type AgentConfig struct {
	Name string
	ConfigAgent
	SmsSendQueue    string
	SmsWorker       string
	NextAgentEnable bool
	NextAgentName   string
}

// AgentFactory builds an agent from its merged configuration.
type AgentFactory func(c AgentConfig, lg *log.Logger) (Agent, error)

// Registry lists the agents and workers that can be named in configuration.
// It is populated at startup and only read afterwards.
type Registry struct {
	agents  map[string]AgentFactory
	workers map[string]Worker
}

func NewRegistry() *Registry {
	return &Registry{
		agents:  map[string]AgentFactory{},
		workers: map[string]Worker{},
	}
}

// DefaultRegistry knows the Clickatell and MockProvider agents and the inline SmsWorker.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterAgent(ClickatellAgentName, NewClickatellAgent)
	r.RegisterAgent(MockAgentName, NewMockAgent)
	r.RegisterWorker(SmsWorkerName, SmsWorker{})
	return r
}

func (r *Registry) RegisterAgent(name string, f AgentFactory) {
	r.agents[name] = f
}

func (r *Registry) RegisterWorker(name string, w Worker) {
	r.workers[name] = w
}

func (r *Registry) agentFactory(name string) (AgentFactory, bool) {
	f, ok := r.agents[name]
	return f, ok
}

func (r *Registry) Worker(name string) (Worker, bool) {
	w, ok := r.workers[name]
	return w, ok
}

// AgentNames returns the registered agent names in sorted order.
func (r *Registry) AgentNames() []string {
	return sortedKeys(r.agents)
}

// WorkerNames returns the registered worker names in sorted order.
func (r *Registry) WorkerNames() []string {
	return sortedKeys(r.workers)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultAgent is the agent used when no name is given.
func (m *Manager) DefaultAgent() string {
	return m.defaultAgent
}

// SetDefaultAgent changes the default agent for this manager only.
func (m *Manager) SetDefaultAgent(name string) string {
	m.defaultAgent = name
	return m.defaultAgent
}

// Agent returns the agent called name, or the default agent when name is empty.
// Each agent is created once and then reused for the lifetime of the manager.
func (m *Manager) Agent(name string) (Agent, error) {
	if name == "" {
		name = m.DefaultAgent()
	}

	m.agentsLock.Lock()
	defer m.agentsLock.Unlock()

	if a, ok := m.agents[name]; ok {
		return a, nil
	}
	a, err := m.CreateAgent(name)
	if err != nil {
		return nil, err
	}
	m.agents[name] = a
	return a, nil
}

// CreateAgent builds a new agent through its registered factory.
func (m *Manager) CreateAgent(name string) (Agent, error) {
	f, ok := m.registry.agentFactory(name)
	if !ok {
		return nil, fmt.Errorf("%w: [%v]", ErrUnsupportedAgent, name)
	}
	c, err := m.AgentConfig(name)
	if err != nil {
		return nil, err
	}
	return f(c, m.log)
}

// AgentConfig merges the settings of agent name with the send queue, the worker and the
// alternate chain.
func (m *Manager) AgentConfig(name string) (AgentConfig, error) {
	c := AgentConfig{
		Name:            name,
		ConfigAgent:     m.config.Agents[name],
		SmsSendQueue:    m.config.SmsSendQueue,
		SmsWorker:       m.config.SmsWorker,
		NextAgentEnable: m.config.Alternate.Enable,
		NextAgentName:   m.AlternateAgentName(name),
	}
	if c.SmsWorker == "" {
		c.SmsWorker = SmsWorkerName
	}
	if _, ok := m.registry.Worker(c.SmsWorker); !ok {
		return AgentConfig{}, fmt.Errorf("%w: [%v]", ErrUnsupportedWorker, c.SmsWorker)
	}
	return c, nil
}

// AlternateAgentName returns the agent that follows name on the alternate list.
// An agent that is not on the list is followed by the first entry. The last entry,
// or an empty list, yields "".
func (m *Manager) AlternateAgentName(name string) string {
	return nextAgentName(m.config.Alternate.Agents, name)
}

func nextAgentName(agents []string, name string) string {
	if len(agents) == 0 {
		return ""
	}
	for i, a := range agents {
		if a == name {
			if i+1 < len(agents) {
				return agents[i+1]
			}
			return ""
		}
	}
	return agents[0]
}
