package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderNotification_PaymentSucceeded(t *testing.T) {
	msg, err := RenderNotification("payment_succeeded", "a@b.com", "Alice", map[string]string{
		"amount_paid": "1500.00",
		"currency":    "USD",
		"hosted_url":  "https://invoice.example/in_1",
	})
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", msg.To)
	assert.Equal(t, "Payment received", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "1500.00 USD")
	assert.Contains(t, msg.HTMLBody, `href="https://invoice.example/in_1"`)
	assert.Contains(t, msg.PlainBody, "Thank you, Alice!")
	assert.Contains(t, msg.PlainBody, "Invoice: https://invoice.example/in_1")
}

func TestRenderNotification_EscapesHTML(t *testing.T) {
	msg, err := RenderNotification("subscription_canceled", "a@b.com", "<script>x</script>", nil)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTMLBody, "<script>")
	assert.Contains(t, msg.HTMLBody, "&lt;script&gt;")
}

func TestRenderNotification_AllKinds(t *testing.T) {
	for _, kind := range []string{"payment_succeeded", "payment_failed", "subscription_canceled"} {
		msg, err := RenderNotification(kind, "a@b.com", "", map[string]string{"total": "19.99", "currency": "EUR"})
		require.NoError(t, err, kind)
		assert.NotEmpty(t, msg.Subject, kind)
		assert.NotEmpty(t, msg.PlainBody, kind)
	}
}

func TestRenderNotification_UnknownKind(t *testing.T) {
	_, err := RenderNotification("welcome", "a@b.com", "", nil)
	assert.Error(t, err)
}

func TestSMTPMailer_RequiresHost(t *testing.T) {
	err := NewSMTPMailer(SMTPConfig{Port: 587, Sender: "no-reply@example.test"}).Send(Message{To: "a@b.com", Subject: "x", HTMLBody: "<p>x</p>"})
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	gm := buildMessage("no-reply@example.test", Message{To: "a@b.com", Subject: "Hello", HTMLBody: "<p>hi</p>", PlainBody: "hi"})
	assert.Equal(t, []string{"no-reply@example.test"}, gm.GetHeader("From"))
	assert.Equal(t, []string{"a@b.com"}, gm.GetHeader("To"))
	assert.Equal(t, []string{"Hello"}, gm.GetHeader("Subject"))
}
