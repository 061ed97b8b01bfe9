package clickatell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type RestClient struct {
	client   *http.Client
	apiToken string
	endpoint string
}

// Rest creates a client for the Clickatell REST API. An empty endpoint means DefaultEndpoint
// and a nil client means http.DefaultClient.
func Rest(apiToken, endpoint string, client *http.Client) *RestClient {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	return &RestClient{
		client:   client,
		apiToken: apiToken,
		endpoint: endpoint,
	}
}

func (c *RestClient) applyHeaders(req *http.Request) *http.Request {
	req.Header.Add("User-Agent", userAgent)
	req.Header.Add("Authorization", "Bearer "+c.apiToken)
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("X-Version", "1")
	req.Header.Add("Accept", "application/json")
	return req
}

func (c *RestClient) Send(ctx context.Context, in Message) (*SendResponse, error) {
	jsonBody, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"rest/message", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	result := &SendResponse{}
	if err = c.do(req, result); err != nil {
		return result, err
	}
	return result, result.Error.GetError()
}

func (c *RestClient) GetStatus(ctx context.Context, messageID string) (*GetStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+"rest/message/"+messageID, nil)
	if err != nil {
		return nil, err
	}
	result := &GetStatusResponse{}
	if err = c.do(req, result); err != nil {
		return result, err
	}
	return result, result.Error.GetError()
}

func (c *RestClient) do(req *http.Request, result interface{}) error {
	resp, err := c.client.Do(c.applyHeaders(req))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err = json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("clickatell: %v: %w", resp.Status, err)
	}
	return nil
}
