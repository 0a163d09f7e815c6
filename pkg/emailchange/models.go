package emailchange

import (
	"time"

	"github.com/google/uuid"
)

// PendingEmailChange records a requested email change awaiting confirmation
// from the new address. The account's stored email is never changed in place;
// it only moves once the confirmation key comes back.
type PendingEmailChange struct {
	ID              uuid.UUID  `json:"id"`
	IdentityID      uuid.UUID  `json:"identity_id"`
	NewEmail        string     `json:"new_email"`
	ConfirmationKey string     `json:"confirmation_key"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
}
