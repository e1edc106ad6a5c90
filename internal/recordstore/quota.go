package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"larder/entity"
)

type quotaRecord struct {
	ObjectID string   `json:"objectId"`
	User     *pointer `json:"user"`
	MonthKey string   `json:"monthKey"`
	Used     int      `json:"used"`
	Limit    int      `json:"limit"`
}

// GetQuota returns the earliest record for the user and month. The store has
// no unique constraint, so a cold-month race can leave a second row; every
// reader settles on the first one.
func (c *Client) GetQuota(ctx context.Context, userID, monthKey string) (*entity.OcrQuota, error) {
	q, err := whereQuery(map[string]interface{}{
		"user":     userPointer(userID),
		"monthKey": monthKey,
	})
	if err != nil {
		return nil, err
	}
	q.Set("limit", "1")
	q.Set("order", "createdAt,objectId")
	data, err := c.request(ctx, http.MethodGet, "/classes/"+classQuota, q, nil, authMaster, "")
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	var res queryResult[quotaRecord]
	if err = json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode quota: %w", err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	r := res.Results[0]
	return &entity.OcrQuota{
		ID:       r.ObjectID,
		UserID:   r.User.id(),
		MonthKey: r.MonthKey,
		Used:     r.Used,
		Limit:    r.Limit,
	}, nil
}

func (c *Client) CreateQuota(ctx context.Context, quota *entity.OcrQuota) error {
	payload := map[string]interface{}{
		"user":     userPointer(quota.UserID),
		"monthKey": quota.MonthKey,
		"used":     quota.Used,
		"limit":    quota.Limit,
		"ACL":      ownerACL(quota.UserID),
	}
	res, err := c.create(ctx, classQuota, payload)
	if err != nil {
		return fmt.Errorf("create quota: %w", err)
	}
	quota.ID = res.ObjectID

	earliest, err := c.GetQuota(ctx, quota.UserID, quota.MonthKey)
	if err != nil {
		return fmt.Errorf("reread quota: %w", err)
	}
	if earliest != nil && earliest.ID != quota.ID {
		c.log.Warn("duplicate quota record",
			slog.String("user_id", quota.UserID),
			slog.String("month", quota.MonthKey),
			slog.String("kept", earliest.ID),
			slog.String("orphan", quota.ID),
		)
		*quota = *earliest
	}
	return nil
}

// IncrementQuota atomically adds one use while used is still below limit and
// refreshes quota.Used from the store's answer.
func (c *Client) IncrementQuota(ctx context.Context, quota *entity.OcrQuota) error {
	payload := map[string]interface{}{
		"used": map[string]interface{}{"__op": "Increment", "amount": 1},
	}
	where := map[string]interface{}{
		"used": map[string]interface{}{"$lt": quota.Limit},
	}
	data, err := c.update(ctx, classQuota, quota.ID, payload, where)
	if err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	var res struct {
		Used *int `json:"used"`
	}
	if err = json.Unmarshal(data, &res); err == nil && res.Used != nil {
		quota.Used = *res.Used
	} else {
		quota.Used++
	}
	return nil
}
