package notification

// NotificationSystem represents a delivery channel (e.g. email).
type NotificationSystem string

// NoticeType identifies one kind of notice sent by the account workflows.
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"

	// AccountActivationNotice carries the activation key for a new account.
	AccountActivationNotice NoticeType = "account_activation"
	// PasswordResetNotice carries a single-use password reset link.
	PasswordResetNotice NoticeType = "password_reset"
	// EmailChangeNotice asks the owner of a new address to confirm the change.
	EmailChangeNotice NoticeType = "email_change"
)

// NoticeTemplate holds the subject and body templates for one notice on one
// system. Text and Html are Go text/html templates rendered against
// NotificationData.Data.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// NotificationData is the payload for a single notification.
type NotificationData struct {
	To      string            // Recipient identifier (e.g. email address)
	Subject string            // Optional subject override
	Body    string            // Optional literal body
	Data    map[string]string // Template data
}

// Notifier delivers a rendered notice over one system.
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
