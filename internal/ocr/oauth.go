package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"larder/entity"
	"larder/lib/sl"
)

// OAuthClient fetches client-credentials tokens from the OCR provider.
type OAuthClient struct {
	hc           *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	log          *slog.Logger
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func NewOAuthClient(hc *http.Client, tokenURL, clientID, clientSecret string, log *slog.Logger) *OAuthClient {
	return &OAuthClient{
		hc:           hc,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		log:          log.With(sl.Module("ocr.oauth")),
	}
}

func (o *OAuthClient) FetchToken(ctx context.Context) (string, time.Duration, error) {
	if o.clientID == "" || o.clientSecret == "" {
		return "", 0, fmt.Errorf("%w: ocr client credentials missing", entity.ErrConfiguration)
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", o.clientID)
	q.Set("client_secret", o.clientSecret)
	endpoint := o.tokenURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	t1 := time.Now()
	resp, err := o.hc.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", entity.ErrUpstreamAuth, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	o.log.Debug("token request completed",
		slog.String("status", resp.Status),
		slog.String("duration", fmt.Sprintf("%.3fms", float64(time.Since(t1))/float64(time.Millisecond))))

	var tr tokenResponse
	if err = json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("%w: %s: %s", entity.ErrUpstreamAuth, resp.Status, body)
	}
	if tr.AccessToken == "" {
		message := tr.ErrorDescription
		if message == "" {
			message = tr.Error
		}
		if message == "" {
			message = "no access token in response"
		}
		return "", 0, fmt.Errorf("%w: %s", entity.ErrUpstreamAuth, message)
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}
