package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/refresh-orchestrator/internal/domain/model"
)

type sent struct {
	addr string
	from string
	to   []string
	msg  string
}

func capturingClient(t *testing.T, sendErr error) (*Client, *[]sent) {
	t.Helper()
	var out []sent
	c, err := NewClient(Config{
		Host:       "smtp.example.com",
		From:       "MGraph <noreply@example.com>",
		AppBaseURL: "https://app.example.com",
		Send: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			out = append(out, sent{addr: addr, from: from, to: to, msg: string(msg)})
			return sendErr
		},
	})
	require.NoError(t, err)
	return c, &out
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{From: "a@example.com"})
	require.Error(t, err)
	_, err = NewClient(Config{Host: "smtp.example.com", From: "not an address"})
	require.Error(t, err)
}

func TestSendRunNotification(t *testing.T) {
	c, out := capturingClient(t, nil)

	err := c.SendRunNotification(context.Background(), model.RunNotification{
		RunID:            "run-1",
		OrganizationName: "acme",
		Outcome:          model.RunOutcomeRefreshed,
		Targets:          model.NotificationTargets{Emails: []string{"ops@example.com", "CFO <cfo@example.com>"}},
		OccurredAt:       time.Date(2026, 10, 19, 9, 1, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, *out, 1)

	got := (*out)[0]
	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "noreply@example.com", got.from)
	assert.Equal(t, []string{"ops@example.com", "cfo@example.com"}, got.to)
	assert.Contains(t, got.msg, "Subject: Acme's MGraph has refreshed!\r\n")
	assert.Contains(t, got.msg, "https://app.example.com/acme")
	assert.True(t, strings.HasPrefix(got.msg, "From: \"MGraph\" <noreply@example.com>\r\n"))
}

func TestSendRunNotification_InvalidAddressesDoNotBlockOthers(t *testing.T) {
	c, out := capturingClient(t, nil)

	err := c.SendRunNotification(context.Background(), model.RunNotification{
		Outcome: model.RunOutcomeTimedOut,
		Targets: model.NotificationTargets{Emails: []string{"broken", "ops@example.com"}},
	})
	require.Error(t, err)
	require.Len(t, *out, 1)
	assert.Equal(t, []string{"ops@example.com"}, (*out)[0].to)
	assert.Contains(t, (*out)[0].msg, "https://app.example.com/settings/refresh-jobs")
}

func TestSendRunNotification_RelayFailure(t *testing.T) {
	c, _ := capturingClient(t, errors.New("421 try later"))
	err := c.SendRunNotification(context.Background(), model.RunNotification{
		Targets: model.NotificationTargets{Emails: []string{"ops@example.com"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "421")
}

func TestSendRunNotification_NoEmailTargets(t *testing.T) {
	c, out := capturingClient(t, nil)
	require.NoError(t, c.SendRunNotification(context.Background(), model.RunNotification{}))
	assert.Empty(t, *out)
}

func TestMimeHeader(t *testing.T) {
	assert.Equal(t, "plain", mimeHeader("plain"))
	assert.True(t, strings.HasPrefix(mimeHeader("Zoë's MGraph"), "=?utf-8?q?"))
}
