package entity

// OcrQuota is the per-user, per-month usage ledger. Limit is fixed when the
// record is created.
type OcrQuota struct {
	ID       string `json:"objectId" bson:"_id"`
	UserID   string `json:"user" bson:"user_id"`
	MonthKey string `json:"monthKey" bson:"month_key"`
	Used     int    `json:"used" bson:"used"`
	Limit    int    `json:"limit" bson:"limit"`
}

func (q *OcrQuota) Exhausted() bool {
	return q.Used >= q.Limit
}
