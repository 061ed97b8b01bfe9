package clickatell

import "errors"

const (
	DefaultEndpoint = "https://api.clickatell.com/"
	userAgent       = "GOClickatell"
)

type Message struct {
	ClientMsgId string   `json:"clientMessageId,omitempty"`
	Destination []string `json:"to"`
	Body        string   `json:"text"`
	From        string   `json:"from,omitempty"`
}

type GetStatusResponse struct {
	Error ErrorResponse `json:"error"`
	Data  struct {
		Charge          int    `json:"charge"`
		StatusCode      string `json:"messageStatus"`
		Description     string `json:"description"`
		APIMessageID    string `json:"apiMessageId"`
		ClientMessageID string `json:"clientMessageId"`
	} `json:"data"`
}

type SendResponse struct {
	Error ErrorResponse `json:"error"`

	Data struct {
		Message []SendResponseMessage `json:"message"`
	} `json:"data"`
}

type SendResponseMessage struct {
	To        string        `json:"to"`
	MessageId string        `json:"apiMessageId"`
	Accepted  bool          `json:"accepted"`
	Error     ErrorResponse `json:"error"`
}

type ErrorResponse struct {
	Description string `json:"description"`
	Code        string `json:"code"`
}

// ClickatellErr carries the vendor error code next to the description.
type ClickatellErr struct {
	error
	Code string
}

func (e *ErrorResponse) HasError() bool {
	return e.Description != "" || e.Code != ""
}

// GetError returns nil when the response carries no error.
func (e *ErrorResponse) GetError() error {
	if !e.HasError() {
		return nil
	}
	desc := e.Description
	if desc == "" {
		desc = "clickatell error " + e.Code
	}
	return &ClickatellErr{errors.New(desc), e.Code}
}
