package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type notificationTemplate struct {
	subject string
	html    *htmltemplate.Template
	plain   *texttemplate.Template
}

type notificationData struct {
	Name    string
	Details map[string]string
}

var notificationTemplates = map[string]notificationTemplate{
	"payment_succeeded": {
		subject: "Payment received",
		html: htmltemplate.Must(htmltemplate.New("payment_succeeded").Parse(`<html><body>
<h2>Thank you{{if .Name}}, {{.Name}}{{end}}!</h2>
<p>We received your payment of <strong>{{index .Details "amount_paid"}} {{index .Details "currency"}}</strong>.</p>
{{with index .Details "hosted_url"}}<p><a href="{{.}}">View invoice</a></p>{{end}}
</body></html>`)),
		plain: texttemplate.Must(texttemplate.New("payment_succeeded").Parse(`Thank you{{if .Name}}, {{.Name}}{{end}}!

We received your payment of {{index .Details "amount_paid"}} {{index .Details "currency"}}.
{{with index .Details "hosted_url"}}Invoice: {{.}}
{{end}}`)),
	},
	"payment_failed": {
		subject: "Your payment failed",
		html: htmltemplate.Must(htmltemplate.New("payment_failed").Parse(`<html><body>
<h2>Payment failed</h2>
<p>Hello{{if .Name}} {{.Name}}{{end}}, we could not collect {{index .Details "total"}} {{index .Details "currency"}} for your subscription.</p>
<p>Please update your payment method to keep premium access.</p>
{{with index .Details "hosted_url"}}<p><a href="{{.}}">Pay invoice</a></p>{{end}}
</body></html>`)),
		plain: texttemplate.Must(texttemplate.New("payment_failed").Parse(`Payment failed

Hello{{if .Name}} {{.Name}}{{end}}, we could not collect {{index .Details "total"}} {{index .Details "currency"}} for your subscription.
Please update your payment method to keep premium access.
{{with index .Details "hosted_url"}}Invoice: {{.}}
{{end}}`)),
	},
	"subscription_canceled": {
		subject: "Your subscription has ended",
		html: htmltemplate.Must(htmltemplate.New("subscription_canceled").Parse(`<html><body>
<h2>Subscription ended</h2>
<p>Hello{{if .Name}} {{.Name}}{{end}}, your premium subscription has ended and your account was switched to the free plan.</p>
</body></html>`)),
		plain: texttemplate.Must(texttemplate.New("subscription_canceled").Parse(`Subscription ended

Hello{{if .Name}} {{.Name}}{{end}}, your premium subscription has ended and your account was switched to the free plan.
`)),
	},
}

// RenderNotification renders a billing notification for the given recipient.
func RenderNotification(kind, to, name string, details map[string]string) (Message, error) {
	tpl, ok := notificationTemplates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}
	if details == nil {
		details = map[string]string{}
	}
	data := notificationData{Name: name, Details: details}

	var html, plain bytes.Buffer
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := tpl.plain.Execute(&plain, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", kind, err)
	}
	return Message{
		To:        to,
		Subject:   tpl.subject,
		HTMLBody:  html.String(),
		PlainBody: plain.String(),
	}, nil
}
