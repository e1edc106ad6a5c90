package entity

import (
	"fmt"
	"net/http"
	"strings"

	"larder/lib/validate"
)

type RegisterRequest struct {
	Username   string `json:"username" validate:"required"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password" validate:"required"`
	InviteCode string `json:"inviteCode" validate:"required"`
}

func (r *RegisterRequest) Bind(_ *http.Request) error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.InviteCode = strings.ToUpper(strings.TrimSpace(r.InviteCode))
	if missing := validate.Missing(r); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

// RequestMeta is best-effort audit data taken from the registration request headers.
type RequestMeta struct {
	UserAgent string
	IP        string
}

type FillRequest struct {
	MaxUsers int `json:"maxUsers,omitempty" validate:"omitempty,min=0"`
}

func (f *FillRequest) Bind(_ *http.Request) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
