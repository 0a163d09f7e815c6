package accounts

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the core authentication record: username, email, credential and
// activation state. Username is immutable after creation; username and email
// are each globally unique across active and inactive accounts.
type Identity struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash []byte     `json:"-"`
	Active       bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	DateJoined   time.Time  `json:"date_joined"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Profile holds the extended, mutable demographic and display data paired 1:1
// with an identity. Profiles are created lazily on first access.
type Profile struct {
	ID                    uuid.UUID      `json:"id"`
	IdentityID            uuid.UUID      `json:"identity_id"`
	Name                  string         `json:"name"`
	Bio                   string         `json:"bio"`
	LanguageProficiencies []string       `json:"language_proficiencies"`
	Meta                  map[string]any `json:"meta"`
}

// NameChangeHistoryEntry records one display-name change in the profile's
// append-only history.
type NameChangeHistoryEntry struct {
	OldName   string    `json:"old_name"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// metaKeyOldNames is the profile metadata key under which name change history
// entries accumulate.
const metaKeyOldNames = "old_names"

// OldNames returns the profile's name change history, oldest first.
func (p *Profile) OldNames() []NameChangeHistoryEntry {
	if p.Meta == nil {
		return nil
	}
	return decodeOldNames(p.Meta[metaKeyOldNames])
}

// AppendOldName appends one entry to the name change history. The history is
// never mutated or pruned.
func (p *Profile) AppendOldName(entry NameChangeHistoryEntry) {
	if p.Meta == nil {
		p.Meta = make(map[string]any)
	}
	p.Meta[metaKeyOldNames] = append(decodeOldNames(p.Meta[metaKeyOldNames]), entry)
}

// decodeOldNames handles both freshly appended entries and entries loaded
// back from JSON metadata storage, where they arrive as generic maps.
func decodeOldNames(raw any) []NameChangeHistoryEntry {
	switch entries := raw.(type) {
	case []NameChangeHistoryEntry:
		return entries
	case []any:
		decoded := make([]NameChangeHistoryEntry, 0, len(entries))
		for _, item := range entries {
			fields, ok := item.(map[string]any)
			if !ok {
				continue
			}
			var entry NameChangeHistoryEntry
			entry.OldName, _ = fields["old_name"].(string)
			entry.ChangedBy, _ = fields["changed_by"].(string)
			if ts, ok := fields["changed_at"].(string); ok {
				entry.ChangedAt, _ = time.Parse(time.RFC3339Nano, ts)
			}
			decoded = append(decoded, entry)
		}
		return decoded
	}
	return nil
}

// Registration is the one-time activation token created alongside a new
// inactive account and consumed exactly once on activation.
type Registration struct {
	ID            uuid.UUID  `json:"id"`
	IdentityID    uuid.UUID  `json:"identity_id"`
	ActivationKey string     `json:"activation_key"`
	CreatedAt     time.Time  `json:"created_at"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
}

// PasswordReset is a single-use, expiring token issued by the password reset
// workflow.
type PasswordReset struct {
	ID         uuid.UUID  `json:"id"`
	IdentityID uuid.UUID  `json:"identity_id"`
	Token      string     `json:"token"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

// AccountView is a visibility-filtered view of one account: a field-name to
// value mapping containing only the fields the viewer may see.
type AccountView map[string]any
