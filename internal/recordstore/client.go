// Package recordstore is a client for a LeanCloud-style REST record store.
// Privileged calls use the master key; sign-up goes through the app key so the
// store issues a session token for the new user.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	classInvite         = "InviteCode"
	classQuota          = "OcrQuota"
	classOrder          = "Order"
	classReconciliation = "InviteReconciliation"
	classUser           = "_User"

	// store error codes
	codeObjectNotFound = 101
	codeSessionMissing = 211
	codeNoEffect       = 305
)

type Config struct {
	Endpoint  string
	AppID     string
	AppKey    string
	MasterKey string
	Timeout   time.Duration
}

type Client struct {
	hc        *http.Client
	baseURL   string
	appID     string
	appKey    string
	masterKey string
	log       *slog.Logger
}

type authMode int

const (
	authMaster authMode = iota
	authApp
	authSession
)

// StoreError is an error body returned by the record store.
type StoreError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %d (code %d): %s", e.Status, e.Code, e.Message)
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		hc:        &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.Endpoint, "/") + "/1.1",
		appID:     cfg.AppID,
		appKey:    cfg.AppKey,
		masterKey: cfg.MasterKey,
		log:       logger.With(sl.Module("recordstore")),
	}
}

type pointer struct {
	Type      string `json:"__type"`
	ClassName string `json:"className"`
	ObjectID  string `json:"objectId"`
}

func userPointer(id string) *pointer {
	return &pointer{Type: "Pointer", ClassName: classUser, ObjectID: id}
}

func (p *pointer) id() string {
	if p == nil {
		return ""
	}
	return p.ObjectID
}

type aclEntry struct {
	Read  bool `json:"read,omitempty"`
	Write bool `json:"write,omitempty"`
}

const adminRole = "role:admin"

// publicReadACL lets anyone read and only admins write.
func publicReadACL() map[string]aclEntry {
	return map[string]aclEntry{
		"*":       {Read: true},
		adminRole: {Read: true, Write: true},
	}
}

// ownerACL restricts a record to its owner and admins.
func ownerACL(userID string) map[string]aclEntry {
	acl := map[string]aclEntry{
		adminRole: {Read: true, Write: true},
	}
	if userID != "" {
		acl[userID] = aclEntry{Read: true}
	}
	return acl
}

type created struct {
	ObjectID     string    `json:"objectId"`
	CreatedAt    time.Time `json:"createdAt"`
	SessionToken string    `json:"sessionToken"`
}

type queryResult[T any] struct {
	Results []T `json:"results"`
	Count   int `json:"count"`
}

func whereQuery(where map[string]interface{}) (url.Values, error) {
	q := url.Values{}
	if len(where) == 0 {
		return q, nil
	}
	data, err := json.Marshal(where)
	if err != nil {
		return nil, fmt.Errorf("marshal where: %w", err)
	}
	q.Set("where", string(data))
	return q, nil
}

// request sends one call to the store and decodes its error body on failure.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, payload interface{}, auth authMode, session string) ([]byte, error) {
	log := c.log.With(
		slog.String("method", method),
		slog.String("path", path),
	)

	status := "ERROR"
	t1 := time.Now()
	defer func() {
		log.Debug("record store request completed",
			slog.String("duration", fmt.Sprintf("%.3fms", float64(time.Since(t1))/float64(time.Millisecond))),
			slog.String("status", status))
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-LC-Id", c.appID)
	switch auth {
	case authMaster:
		req.Header.Set("X-LC-Key", c.masterKey+",master")
	case authApp:
		req.Header.Set("X-LC-Key", c.appKey)
	case authSession:
		req.Header.Set("X-LC-Key", c.appKey)
		req.Header.Set("X-LC-Session", session)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record store request: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	status = resp.Status

	if resp.StatusCode >= 300 {
		storeErr := &StoreError{Status: resp.StatusCode}
		if e := json.Unmarshal(data, storeErr); e != nil || storeErr.Message == "" {
			storeErr.Message = strings.TrimSpace(string(data))
		}
		if storeErr.Code != codeNoEffect {
			log.Warn("record store returned error", sl.Err(storeErr))
		}
		return nil, storeErr
	}
	return data, nil
}

// isNoEffect reports a conditional write whose where clause matched nothing.
func isNoEffect(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Code == codeNoEffect
}

func isNotFound(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && (storeErr.Code == codeObjectNotFound || storeErr.Status == http.StatusNotFound)
}

func (c *Client) count(ctx context.Context, path string, where map[string]interface{}) (int, error) {
	q, err := whereQuery(where)
	if err != nil {
		return 0, err
	}
	q.Set("count", "1")
	q.Set("limit", "0")
	data, err := c.request(ctx, http.MethodGet, path, q, nil, authMaster, "")
	if err != nil {
		return 0, err
	}
	var res queryResult[json.RawMessage]
	if err = json.Unmarshal(data, &res); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return res.Count, nil
}

func (c *Client) create(ctx context.Context, class string, payload interface{}) (*created, error) {
	data, err := c.request(ctx, http.MethodPost, "/classes/"+class, nil, payload, authMaster, "")
	if err != nil {
		return nil, err
	}
	var res created
	if err = json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode create: %w", err)
	}
	if res.ObjectID == "" {
		return nil, fmt.Errorf("create %s: no object id returned", class)
	}
	return &res, nil
}

func (c *Client) update(ctx context.Context, class, id string, payload interface{}, where map[string]interface{}) ([]byte, error) {
	q, err := whereQuery(where)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		q.Set("fetchWhenSave", "true")
	}
	data, err := c.request(ctx, http.MethodPut, "/classes/"+class+"/"+url.PathEscape(id), q, payload, authMaster, "")
	if isNoEffect(err) {
		return nil, entity.ErrConflict
	}
	if isNotFound(err) {
		return nil, entity.ErrNotFound
	}
	return data, err
}
