package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"larder/entity"
	"larder/lib/sl"
)

const (
	pathStandard = "general_basic"
	pathAccurate = "accurate_basic"
)

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the provider's recognition endpoints with a cached bearer token.
type Client struct {
	hc      *http.Client
	baseURL string
	tokens  TokenSource
	log     *slog.Logger
}

type recognizeResponse struct {
	LogID          int64                `json:"log_id"`
	WordsResultNum int                  `json:"words_result_num"`
	WordsResult    []entity.WordsResult `json:"words_result"`
	ErrorCode      int                  `json:"error_code"`
	ErrorMsg       string               `json:"error_msg"`
}

func NewClient(hc *http.Client, baseURL string, tokens TokenSource, log *slog.Logger) *Client {
	return &Client{
		hc:      hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		log:     log.With(sl.Module("ocr.client")),
	}
}

func modePath(mode entity.OcrMode) string {
	if mode.Normalize() == entity.OcrModeAccurate {
		return pathAccurate
	}
	return pathStandard
}

func (c *Client) Recognize(ctx context.Context, imageBase64 string, mode entity.OcrMode) (*entity.OcrResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	path := modePath(mode)
	log := c.log.With(slog.String("model", path))

	form := url.Values{}
	form.Set("image", imageBase64)
	endpoint := fmt.Sprintf("%s/%s?access_token=%s", c.baseURL, path, url.QueryEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status := "ERROR"
	t1 := time.Now()
	defer func() {
		log.Debug("ocr request completed",
			slog.String("duration", fmt.Sprintf("%.3fms", float64(time.Since(t1))/float64(time.Millisecond))),
			slog.String("status", status))
	}()

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	status = resp.Status

	var rr recognizeResponse
	if err = json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("ocr %s: %s", resp.Status, body)
	}
	if rr.ErrorCode != 0 {
		return nil, &entity.UpstreamOcrError{Code: rr.ErrorCode, Message: rr.ErrorMsg}
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ocr %s: %s", resp.Status, body)
	}

	result := &entity.OcrResult{WordsResult: rr.WordsResult}
	if result.WordsResult == nil {
		result.WordsResult = []entity.WordsResult{}
	}
	log.With(slog.Int("regions", len(result.WordsResult))).Debug("ocr recognized")
	return result, nil
}
