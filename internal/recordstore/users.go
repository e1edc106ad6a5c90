package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"larder/entity"
)

type userRecord struct {
	ObjectID string      `json:"objectId"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     entity.Role `json:"role"`
}

func (c *Client) CountUsers(ctx context.Context) (int, error) {
	n, err := c.count(ctx, "/users", nil)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// SignUp creates the user with the app key, not the master key, so the
// response carries a session token the client can use right away.
func (c *Client) SignUp(ctx context.Context, username, email, password string) (*entity.Session, error) {
	payload := map[string]string{
		"username": username,
		"password": password,
	}
	if email != "" {
		payload["email"] = email
	}
	data, err := c.request(ctx, http.MethodPost, "/users", nil, payload, authApp, "")
	if err != nil {
		return nil, err
	}
	var res created
	if err = json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode sign up: %w", err)
	}
	if res.ObjectID == "" || res.SessionToken == "" {
		return nil, fmt.Errorf("sign up: incomplete response")
	}
	return &entity.Session{UserID: res.ObjectID, SessionToken: res.SessionToken}, nil
}

func (c *Client) UserBySession(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, entity.ErrSessionInvalid
	}
	data, err := c.request(ctx, http.MethodGet, "/users/me", nil, nil, authSession, token)
	if err != nil {
		var storeErr *StoreError
		if errors.As(err, &storeErr) && (storeErr.Code == codeSessionMissing || storeErr.Status == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s", entity.ErrSessionInvalid, storeErr.Message)
		}
		return nil, err
	}
	var rec userRecord
	if err = json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if rec.ObjectID == "" {
		return nil, entity.ErrSessionInvalid
	}
	return &entity.User{
		ID:           rec.ObjectID,
		Username:     rec.Username,
		Email:        rec.Email,
		Role:         rec.Role,
		SessionToken: token,
	}, nil
}
