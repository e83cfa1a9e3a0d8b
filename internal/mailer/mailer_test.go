package mailer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
)

func TestPersonalize(t *testing.T) {
	vars := map[string]string{"firstName": "Asha", "companyName": "Acme"}
	got := Personalize("Hi {{ firstName }}, {{COMPANYNAME}} team{{unknown}}", vars)
	assert.Equal(t, "Hi Asha, Acme team", got)

	assert.Equal(t, "Hi ", Personalize("Hi {{name}}", nil))
}

func TestRenderHTMLPlainText(t *testing.T) {
	got := RenderHTML("Hello\r\n\r\n- one\n• two\nBye")
	want := containerOpen +
		`<p style="margin: 8px 0;">Hello</p>` +
		`<br>` +
		`<ul style="margin: 8px 0; padding-left: 20px;">` +
		`<li style="margin: 4px 0;">one</li>` +
		`<li style="margin: 4px 0;">two</li>` +
		`</ul>` +
		`<p style="margin: 8px 0;">Bye</p>` +
		`</div>`
	assert.Equal(t, want, got)
}

func TestRenderHTMLCleansEditorMarkup(t *testing.T) {
	in := `<style>p{color:red}</style><p class="ql-align"><span style="x">Hi</span> <font color="red">there</font></p><script>alert(1)</script>`
	assert.Equal(t, containerOpen+`<p>Hi there</p></div>`, RenderHTML(in))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Hi & bye", StripTags("<p>Hi &amp; <b>bye</b></p>"))
}

func TestAddTracking(t *testing.T) {
	out := AddTracking(`<p><a href="https://x.test/a?b=1">go</a></p>`, "http://h/", "c1", "a@b.test")

	assert.Contains(t, out, `<a href="http://h/api/v1/track/c1?action=click&amp;email=a%40b.test&amp;redirect=https%3A%2F%2Fx.test%2Fa%3Fb%3D1">go</a>`)
	assert.Contains(t, out, `<img src="http://h/api/v1/track/c1?action=open&amp;email=a%40b.test" width="1" height="1" style="display:none;" />`)
	assert.NotContains(t, out, `href="https://x.test`)
}

func TestTemplateCompose(t *testing.T) {
	tpl := &Template{
		FromName: "Sales",
		From:     "sales@corp.test",
		Subject:  "Hello {{clientName}}",
		Body:     "Dear {{clientName}},\nThanks",
		Attachments: []Attachment{
			{FileName: "deck.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		},
	}
	unit := domain.RecipientUnit{
		Name:  "Acme",
		Email: "ops@acme.test",
		Cc:    []string{"rep@corp.test"},
		Vars:  map[string]string{"clientName": "Acme"},
	}

	msg := tpl.Compose(unit)
	assert.Equal(t, "Hello Acme", msg.Subject)
	assert.Equal(t, "ops@acme.test", msg.To)
	assert.Equal(t, []string{"rep@corp.test"}, msg.Cc)
	assert.Contains(t, msg.HTML, "Dear Acme,")
	assert.NotContains(t, msg.HTML, "/api/v1/track/")
	assert.Equal(t, "Dear Acme,Thanks", msg.Text)

	tpl.CampaignID = "camp-1"
	tpl.TrackingBaseURL = "http://track.test"
	assert.Contains(t, tpl.Compose(unit).HTML, "http://track.test/api/v1/track/camp-1?action=open")
}

func TestBuildMessage(t *testing.T) {
	m := buildMessage(Message{
		FromName:    "Sales",
		From:        "sales@corp.test",
		To:          "ops@acme.test",
		Cc:          []string{"rep@corp.test"},
		Subject:     "Hello",
		HTML:        "<p>Hi</p>",
		Attachments: []Attachment{{FileName: "deck.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}},
	})

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Hello")
	assert.Contains(t, raw, "To: ops@acme.test")
	assert.Contains(t, raw, "Cc: rep@corp.test")
	assert.Contains(t, raw, "sales@corp.test")
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, `filename="deck.pdf"`)
}

func TestNewSMTPTransportRequiresConfig(t *testing.T) {
	_, err := NewSMTPTransport(config.SMTPConfig{Host: "smtp.test", Port: 587})
	assert.ErrorIs(t, err, config.ErrSMTPNotConfigured)

	tr, err := NewSMTPTransport(config.SMTPConfig{Host: "smtp.test", Port: 587, User: "u", Pass: "p"})
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestDryRunTransport(t *testing.T) {
	ctx := context.Background()
	tr := DryRunTransport{}

	assert.NoError(t, tr.Send(ctx, Message{From: "a@x.test", To: "b@x.test"}))
	assert.NoError(t, tr.Send(ctx, Message{To: "b@x.test"}), "dry run needs no sender")
	assert.Error(t, tr.Send(ctx, Message{From: "a@x.test"}))
	assert.Error(t, tr.Send(ctx, Message{From: "a@x.test", To: "not an address"}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, tr.Send(cancelled, Message{From: "a@x.test", To: "b@x.test"}), context.Canceled)
}
