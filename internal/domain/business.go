package domain

// Business is the tenant that owns recovery cases.
type Business struct {
	ID              string
	UserID          string
	BusinessName    string
	UseRecoveryFlow bool
}

// OwnedBy reports whether userID owns the business.
func (b *Business) OwnedBy(userID string) bool {
	return b != nil && userID != "" && b.UserID == userID
}
