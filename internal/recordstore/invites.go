package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"larder/entity"
)

type inviteRecord struct {
	ObjectID    string    `json:"objectId"`
	Code        string    `json:"code"`
	Used        bool      `json:"used"`
	Invalidated bool      `json:"invalidated"`
	UsedBy      *pointer  `json:"usedBy"`
	UsedAt      string    `json:"usedAt"`
	UsedUA      string    `json:"usedUA"`
	UsedIP      string    `json:"usedIP"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r *inviteRecord) toEntity() *entity.InviteCode {
	return &entity.InviteCode{
		ID:          r.ObjectID,
		Code:        r.Code,
		Used:        r.Used,
		Invalidated: r.Invalidated,
		UsedBy:      r.UsedBy.id(),
		UsedAt:      r.UsedAt,
		UsedUA:      r.UsedUA,
		UsedIP:      r.UsedIP,
		CreatedAt:   r.CreatedAt,
	}
}

// usableWhere matches invites that were neither consumed nor invalidated.
func usableWhere() map[string]interface{} {
	return map[string]interface{}{
		"used":        false,
		"invalidated": map[string]interface{}{"$ne": true},
	}
}

func (c *Client) CreateInvite(ctx context.Context, code string) (*entity.InviteCode, error) {
	payload := map[string]interface{}{
		"code": code,
		"used": false,
		"ACL":  publicReadACL(),
	}
	res, err := c.create(ctx, classInvite, payload)
	if err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return &entity.InviteCode{ID: res.ObjectID, Code: code, CreatedAt: res.CreatedAt}, nil
}

func (c *Client) ListInvites(ctx context.Context, limit int) ([]*entity.InviteCode, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "-createdAt")
	data, err := c.request(ctx, http.MethodGet, "/classes/"+classInvite, q, nil, authMaster, "")
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	var res queryResult[inviteRecord]
	if err = json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode invites: %w", err)
	}
	invites := make([]*entity.InviteCode, 0, len(res.Results))
	for i := range res.Results {
		invites = append(invites, res.Results[i].toEntity())
	}
	return invites, nil
}

func (c *Client) FindUsableInvite(ctx context.Context, code string) (*entity.InviteCode, error) {
	where := usableWhere()
	where["code"] = code
	q, err := whereQuery(where)
	if err != nil {
		return nil, err
	}
	q.Set("limit", "1")
	data, err := c.request(ctx, http.MethodGet, "/classes/"+classInvite, q, nil, authMaster, "")
	if err != nil {
		return nil, fmt.Errorf("find invite: %w", err)
	}
	var res queryResult[inviteRecord]
	if err = json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode invite: %w", err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return res.Results[0].toEntity(), nil
}

func (c *Client) CountUsableInvites(ctx context.Context) (int, error) {
	n, err := c.count(ctx, "/classes/"+classInvite, usableWhere())
	if err != nil {
		return 0, fmt.Errorf("count invites: %w", err)
	}
	return n, nil
}

// ClaimInvite marks the invite used only if it is still usable; a lost race
// surfaces as entity.ErrConflict.
func (c *Client) ClaimInvite(ctx context.Context, id string, claim entity.InviteClaim) error {
	payload := map[string]interface{}{"used": true}
	for k, v := range claim.Fields() {
		payload[k] = v
	}
	payload["usedBy"] = userPointer(claim.UserID)
	_, err := c.update(ctx, classInvite, id, payload, usableWhere())
	if err != nil {
		return fmt.Errorf("claim invite: %w", err)
	}
	return nil
}

func (c *Client) InvalidateInvite(ctx context.Context, id string) error {
	_, err := c.update(ctx, classInvite, id, map[string]interface{}{"invalidated": true}, nil)
	if err != nil {
		return fmt.Errorf("invalidate invite: %w", err)
	}
	return nil
}

func (c *Client) DeleteInvite(ctx context.Context, id string) error {
	_, err := c.request(ctx, http.MethodDelete, "/classes/"+classInvite+"/"+url.PathEscape(id), nil, nil, authMaster, "")
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

type reconciliationRecord struct {
	ObjectID  string    `json:"objectId"`
	InviteID  string    `json:"inviteId"`
	Code      string    `json:"code"`
	User      *pointer  `json:"user"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Client) SaveReconciliation(ctx context.Context, rec *entity.Reconciliation) error {
	payload := map[string]interface{}{
		"inviteId": rec.InviteID,
		"code":     rec.Code,
		"user":     userPointer(rec.UserID),
		"reason":   rec.Reason,
		"detail":   rec.Detail,
		"ACL":      ownerACL(""),
	}
	res, err := c.create(ctx, classReconciliation, payload)
	if err != nil {
		return fmt.Errorf("save reconciliation: %w", err)
	}
	rec.ID = res.ObjectID
	rec.CreatedAt = res.CreatedAt
	return nil
}

func (c *Client) ListReconciliations(ctx context.Context, limit int) ([]*entity.Reconciliation, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "-createdAt")
	data, err := c.request(ctx, http.MethodGet, "/classes/"+classReconciliation, q, nil, authMaster, "")
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	var res queryResult[reconciliationRecord]
	if err = json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode reconciliations: %w", err)
	}
	list := make([]*entity.Reconciliation, 0, len(res.Results))
	for _, r := range res.Results {
		list = append(list, &entity.Reconciliation{
			ID:        r.ObjectID,
			InviteID:  r.InviteID,
			Code:      r.Code,
			UserID:    r.User.id(),
			Reason:    r.Reason,
			Detail:    r.Detail,
			CreatedAt: r.CreatedAt,
		})
	}
	return list, nil
}
