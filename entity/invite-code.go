package entity

import "time"

// InviteCode is a single-use token gating registration.
// Transitions: unused -> used once, at registration; unused -> invalidated by an
// admin. Neither is ever reverted.
type InviteCode struct {
	ID          string    `json:"objectId" bson:"_id"`
	Code        string    `json:"code" bson:"code"`
	Used        bool      `json:"used" bson:"used"`
	Invalidated bool      `json:"invalidated,omitempty" bson:"invalidated,omitempty"`
	UsedBy      string    `json:"usedBy,omitempty" bson:"used_by,omitempty"`
	UsedAt      string    `json:"usedAt,omitempty" bson:"used_at,omitempty"`
	UsedUA      string    `json:"usedUA,omitempty" bson:"used_ua,omitempty"`
	UsedIP      string    `json:"usedIP,omitempty" bson:"used_ip,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}

func (c *InviteCode) Usable() bool {
	return c != nil && !c.Used && !c.Invalidated
}

// InviteClaim is the write that consumes an invite. A minimal claim carries
// only the user reference, used when the full audit write was rejected.
type InviteClaim struct {
	UserID    string
	UsedAt    string
	UserAgent string
	IP        string
	Minimal   bool
}

// Fields renders the claim as the flat attribute set written to the invite.
func (c InviteClaim) Fields() map[string]string {
	fields := map[string]string{"usedBy": c.UserID}
	if c.Minimal {
		return fields
	}
	if c.UsedAt != "" {
		fields["usedAt"] = c.UsedAt
	}
	if c.UserAgent != "" {
		fields["usedUA"] = c.UserAgent
	}
	if c.IP != "" {
		fields["usedIP"] = c.IP
	}
	return fields
}

// FillResult is the outcome of a top-up: how many codes were due and the ones
// actually written.
type FillResult struct {
	ToCreate int           `json:"toCreate"`
	Created  []*InviteCode `json:"created"`
}

// CapacityStatus is a snapshot of seats and invites; the numbers are read one
// after another and may be slightly out of step under concurrent registrations.
type CapacityStatus struct {
	Users         int `json:"users"`
	MaxUsers      int `json:"maxUsers"`
	UnusedInvites int `json:"unusedInvites"`
	ToCreate      int `json:"toCreate"`
}
