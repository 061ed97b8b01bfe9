package smsverify

import (
	"context"
	"errors"

	"github.com/IMQS/log"
	"github.com/IMQS/smsverify/clickatell"
	"github.com/google/uuid"
)

const ClickatellAgentName = "Clickatell"

// ClickatellAgent sends through the Clickatell REST API. Clickatell has no stored
// templates, so only the message content is sent.
type ClickatellAgent struct {
	config AgentConfig
	log    *log.Logger
	rest   *clickatell.RestClient
}

func NewClickatellAgent(c AgentConfig, lg *log.Logger) (Agent, error) {
	if c.Token == "" {
		return nil, errors.New("clickatell agent needs a Token")
	}
	return &ClickatellAgent{
		config: c,
		log:    lg,
		rest:   clickatell.Rest(c.Token, c.Endpoint, nil),
	}, nil
}

func (a *ClickatellAgent) Name() string {
	return a.config.Name
}

// SendSms converts the message to the Clickatell format and maps the reply back.
func (a *ClickatellAgent) SendSms(ctx context.Context, msg Message) (SendResult, error) {
	cm := clickatell.Message{
		Destination: []string{msg.To},
		Body:        msg.Content,
		ClientMsgId: uuid.NewString(),
		From:        a.config.From,
	}
	resp, err := a.rest.Send(ctx, cm)
	if err == nil {
		err = getError(resp)
	}

	res := SendResult{Agent: a.Name(), Status: Sent}
	if resp != nil && len(resp.Data.Message) > 0 {
		res.MessageID = resp.Data.Message[0].MessageId
	}
	if err != nil {
		res.Status = Failed
	}
	return res, err
}

// We're not getting a proper error response from Clickatell.  Attempt to get
// the correct error by looking at the error in the first message.
func getError(r *clickatell.SendResponse) error {
	if len(r.Data.Message) == 0 {
		return errors.New("clickatell: no message in send response")
	}
	return r.Data.Message[0].Error.GetError()
}

// MessageStatus asks Clickatell for the delivery status of a message it accepted.
func (a *ClickatellAgent) MessageStatus(ctx context.Context, messageID string) (string, string, error) {
	resp, err := a.rest.GetStatus(ctx, messageID)
	if err != nil {
		return "", "", err
	}
	return clickatellStatus(resp.Data.StatusCode), resp.Data.Description, nil
}

// Clickatell message status codes. 004 is "Received by recipient"; the rest
// listed here are final failures.
func clickatellStatus(code string) string {
	switch code {
	case "004":
		return Delivered
	case "005", "006", "007", "009", "010", "012":
		return Failed
	}
	return Sent
}
