package entity

import "time"

const (
	ReasonMarkUsedFailed      = "mark_used_failed"
	ReasonClaimedConcurrently = "claimed_concurrently"
)

// Reconciliation flags a registration whose user exists but whose invite
// bookkeeping could not be completed; an operator repairs it by hand.
type Reconciliation struct {
	ID        string    `json:"objectId" bson:"_id"`
	InviteID  string    `json:"inviteId" bson:"invite_id"`
	Code      string    `json:"code" bson:"code"`
	UserID    string    `json:"userId" bson:"user_id"`
	Reason    string    `json:"reason" bson:"reason"`
	Detail    string    `json:"detail,omitempty" bson:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
