package smsverify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/IMQS/log"
	"github.com/google/uuid"
)

const MockAgentName = "MockProvider"

var errMockFailure = errors.New("mock provider: simulated failure")

// MockAgent simulates an SMS vendor for testing purposes. It remembers every message
// it was asked to send, and fails every send when SimulateFailure is set.
type MockAgent struct {
	config AgentConfig
	log    *log.Logger

	lock sync.Mutex
	sent []Message
}

// Mock message ids carry this prefix, so any MockAgent instance can recognise them.
const mockIDPrefix = "mock-"

func NewMockAgent(c AgentConfig, lg *log.Logger) (Agent, error) {
	return &MockAgent{config: c, log: lg}, nil
}

func (a *MockAgent) Name() string {
	return a.config.Name
}

func (a *MockAgent) SendSms(ctx context.Context, msg Message) (SendResult, error) {
	if a.config.SimulateFailure {
		a.log.Infof("Simulating failure to send to %v with %v", msg.To, a.Name())
		return SendResult{Agent: a.Name(), Status: Failed}, errMockFailure
	}
	a.log.Infof("Simulating sending message to %v with %v", msg.To, a.Name())

	a.lock.Lock()
	a.sent = append(a.sent, msg)
	a.lock.Unlock()

	return SendResult{
		Agent:     a.Name(),
		MessageID: mockIDPrefix + uuid.NewString(),
		Status:    Sent,
	}, nil
}

// MessageStatus reports every message sent by a mock agent as delivered.
func (a *MockAgent) MessageStatus(ctx context.Context, messageID string) (string, string, error) {
	if !strings.HasPrefix(messageID, mockIDPrefix) {
		return "", "", fmt.Errorf("mock provider: unknown message %v", messageID)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(messageID, mockIDPrefix)); err != nil {
		return "", "", fmt.Errorf("mock provider: unknown message %v", messageID)
	}
	return Delivered, "Received by recipient", nil
}

// Sent returns a copy of the messages sent so far.
func (a *MockAgent) Sent() []Message {
	a.lock.Lock()
	defer a.lock.Unlock()
	return append([]Message(nil), a.sent...)
}
