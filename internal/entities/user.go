package entities

type User struct {
	ID           int    `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`        // "admin" or "user"
	QuotaLimit   int    `json:"quota_limit"` // Max outbound messages
	QuotaUsed    int    `json:"quota_used"`  // Messages already consumed
}

// QuotaInfo is derived from a user record, never stored.
type QuotaInfo struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// Quota computes the derived quota figures for a user.
func (u *User) Quota() QuotaInfo {
	remaining := u.QuotaLimit - u.QuotaUsed
	if remaining < 0 {
		remaining = 0
	}
	return QuotaInfo{Limit: u.QuotaLimit, Used: u.QuotaUsed, Remaining: remaining}
}

// RecipientList is a saved set of raw recipient numbers owned by a user.
type RecipientList struct {
	ID      string   `json:"id"`
	OwnerID int      `json:"owner_id"`
	Name    string   `json:"name"`
	Numbers []string `json:"numbers"`
}
