package entity

// CallerIdentity is who issued a request: either a resolved user or an
// anonymous caller. Consumers must handle both variants explicitly.
type CallerIdentity interface {
	callerIdentity()
}

type KnownCaller struct {
	User *User
}

// AnonymousCaller had no session, or a session the store refused.
type AnonymousCaller struct {
	IP     string
	Reason string
}

func (KnownCaller) callerIdentity()     {}
func (AnonymousCaller) callerIdentity() {}

// AnonymousPolicy decides what the OCR proxy does with anonymous callers.
type AnonymousPolicy string

const (
	AnonymousReject AnonymousPolicy = "reject"
	AnonymousAllow  AnonymousPolicy = "allow"
	AnonymousLimit  AnonymousPolicy = "limit"
)
