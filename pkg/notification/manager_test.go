package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterNotificationRejectsEmptyInput(t *testing.T) {
	nm := NewNotificationManager()
	assert.Error(t, nm.RegisterNotification("", EmailSystem, NoticeTemplate{}))
	assert.Error(t, nm.RegisterNotification(AccountActivationNotice, "", NoticeTemplate{}))
}

func TestSendWithoutTemplate(t *testing.T) {
	nm := NewNotificationManager()
	nm.RegisterNotifier(EmailSystem, NewMockNotifier())

	err := nm.Send(AccountActivationNotice, NotificationData{To: "ted@example.com"})
	assert.ErrorContains(t, err, "no templates registered")
}

func TestSendWithoutNotifier(t *testing.T) {
	nm := NewNotificationManager()
	require.NoError(t, nm.RegisterNotification(AccountActivationNotice, EmailSystem, NoticeTemplate{Subject: "s"}))

	err := nm.Send(AccountActivationNotice, NotificationData{To: "ted@example.com"})
	assert.ErrorContains(t, err, "no notifier registered")
}

func TestSendDelivers(t *testing.T) {
	nm := NewNotificationManager()
	notifier := NewMockNotifier()
	nm.RegisterNotifier(EmailSystem, notifier)
	template := NoticeTemplate{Subject: "Activate Your Account", Html: "<p>{{.ActivationKey}}</p>"}
	require.NoError(t, nm.RegisterNotification(AccountActivationNotice, EmailSystem, template))

	err := nm.Send(AccountActivationNotice, NotificationData{
		To:   "ted@example.com",
		Data: map[string]string{"ActivationKey": "abc"},
	})
	require.NoError(t, err)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, AccountActivationNotice, sent[0].NoticeType)
	assert.Equal(t, "ted@example.com", sent[0].Data.To)
	assert.Equal(t, template, sent[0].Template)
}

func TestSendPropagatesNotifierError(t *testing.T) {
	nm := NewNotificationManager()
	notifier := NewMockNotifier()
	notifier.FailWith = assert.AnError
	nm.RegisterNotifier(EmailSystem, notifier)
	require.NoError(t, nm.RegisterNotification(PasswordResetNotice, EmailSystem, NoticeTemplate{Subject: "s"}))

	err := nm.Send(PasswordResetNotice, NotificationData{To: "ted@example.com"})
	assert.ErrorIs(t, err, assert.AnError)
}
