package domain

import "time"

// PlatformTwitter is the rate-limited social platform.
const PlatformTwitter = "twitter"

// UsageDateLayout formats the UTC calendar day of a usage record.
const UsageDateLayout = "2006-01-02"

// UsageRecord counts calls consumed by one user on one platform during one UTC day.
type UsageRecord struct {
	UserID    string    `db:"user_id"`
	Platform  string    `db:"platform"`
	Date      string    `db:"usage_date"`
	CallsUsed int       `db:"calls_used"`
	UpdatedAt time.Time `db:"updated_at"`
}

// UsageDate returns the UTC-normalised day key for t.
func UsageDate(t time.Time) string {
	return t.UTC().Format(UsageDateLayout)
}

// QuotaDecision is the outcome of a quota check. Reason is set when denied.
type QuotaDecision struct {
	Allowed bool
	Reason  string
}
