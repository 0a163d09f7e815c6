package notification

import "sync"

// SentNotice is one notice captured by the mock notifier.
type SentNotice struct {
	NoticeType NoticeType
	Data       NotificationData
	Template   NoticeTemplate
}

// MockNotifier records every send (for testing).
type MockNotifier struct {
	mu   sync.Mutex
	sent []SentNotice

	// FailWith, when set, is returned from every Send call.
	FailWith error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.sent = append(m.sent, SentNotice{NoticeType: noticeType, Data: notification, Template: template})
	return nil
}

// Sent returns a copy of all recorded notices.
func (m *MockNotifier) Sent() []SentNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentNotice(nil), m.sent...)
}
