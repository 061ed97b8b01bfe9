package smsverify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IMQS/smsverify/clickatell"
)

func TestClickatellAgentNeedsToken(t *testing.T) {
	if _, err := NewClickatellAgent(AgentConfig{Name: ClickatellAgentName}, testLogger(t)); err == nil {
		t.Errorf("Expected an error without a token")
	}
}

func TestClickatellAgentSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"message":[{"to":"27825551234","apiMessageId":"m-1","accepted":true}]}}`))
	}))
	defer srv.Close()

	c := AgentConfig{Name: ClickatellAgentName, ConfigAgent: ConfigAgent{Token: "t", Endpoint: srv.URL}}
	a, err := NewClickatellAgent(c, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	res, err := a.SendSms(context.Background(), Message{To: "27825551234", Content: "Your code is 12345"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Agent != ClickatellAgentName || res.MessageID != "m-1" || res.Status != Sent {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestClickatellAgentMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"message":[{"to":"1","accepted":false,"error":{"code":"105","description":"Invalid destination address"}}]}}`))
	}))
	defer srv.Close()

	c := AgentConfig{Name: ClickatellAgentName, ConfigAgent: ConfigAgent{Token: "t", Endpoint: srv.URL}}
	a, _ := NewClickatellAgent(c, testLogger(t))
	res, err := a.SendSms(context.Background(), Message{To: "1", Content: "x"})
	if err == nil || res.Status != Failed {
		t.Fatalf("Expected a failed send, got %+v %v", res, err)
	}
	var cerr *clickatell.ClickatellErr
	if !errors.As(err, &cerr) || cerr.Code != "105" {
		t.Errorf("Unexpected error %v", err)
	}
}
