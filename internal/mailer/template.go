package mailer

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/timmy/outreach/internal/domain"
)

const containerOpen = `<div style="font-family: Arial, Helvetica, sans-serif; font-size: 14px; line-height: 1.6; color: #333;">`

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
	styleRe       = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptRe      = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	classRe       = regexp.MustCompile(`(?i)\s*class="[^"]*"`)
	fontSpanRe    = regexp.MustCompile(`(?i)</?(font|span)[^>]*>`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	bulletRe      = regexp.MustCompile(`^[•\-*+]\s+(.+)$`)
	anchorRe      = regexp.MustCompile(`(?i)<a\s+([^>]*?)href="([^"]*?)"([^>]*?)>`)
)

// Personalize replaces {{ key }} placeholders with values from vars. Keys match
// case-insensitively; unknown keys become empty strings.
func Personalize(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return placeholderRe.ReplaceAllString(text, "")
	}
	lower := make(map[string]string, len(vars))
	for k, v := range vars {
		lower[strings.ToLower(k)] = v
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		return lower[strings.ToLower(key)]
	})
}

// IsHTML reports whether body was authored in the rich text editor.
func IsHTML(body string) bool {
	return strings.Contains(body, "<") && strings.Contains(body, ">")
}

// RenderHTML turns a pitch into an email-safe HTML fragment. HTML input is
// stripped of styles, scripts, classes, font and span tags. Plain text becomes
// paragraphs, with bullet lines grouped into lists and blank lines kept as breaks.
func RenderHTML(body string) string {
	if IsHTML(body) {
		out := styleRe.ReplaceAllString(body, "")
		out = scriptRe.ReplaceAllString(out, "")
		out = classRe.ReplaceAllString(out, "")
		out = fontSpanRe.ReplaceAllString(out, "")
		return containerOpen + out + "</div>"
	}

	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")

	var b strings.Builder
	b.WriteString(containerOpen)
	inList := false
	closeList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			closeList()
			b.WriteString("<br>")
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			if !inList {
				b.WriteString(`<ul style="margin: 8px 0; padding-left: 20px;">`)
				inList = true
			}
			fmt.Fprintf(&b, `<li style="margin: 4px 0;">%s</li>`, m[1])
			continue
		}
		closeList()
		fmt.Fprintf(&b, `<p style="margin: 8px 0;">%s</p>`, line)
	}
	closeList()
	b.WriteString("</div>")
	return b.String()
}

// StripTags produces the plain text alternative of an HTML body.
func StripTags(s string) string {
	return html.UnescapeString(tagRe.ReplaceAllString(s, ""))
}

// TrackingURL is the open/click endpoint for one campaign recipient.
func TrackingURL(baseURL, campaignID, email, action, redirect string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("action", action)
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	return fmt.Sprintf("%s/api/v1/track/%s?%s", strings.TrimSuffix(baseURL, "/"), url.PathEscape(campaignID), q.Encode())
}

// AddTracking rewrites every link through the click endpoint and appends an
// open pixel.
func AddTracking(htmlBody, baseURL, campaignID, email string) string {
	out := anchorRe.ReplaceAllStringFunc(htmlBody, func(m string) string {
		parts := anchorRe.FindStringSubmatch(m)
		tracked := TrackingURL(baseURL, campaignID, email, "click", html.UnescapeString(parts[2]))
		return fmt.Sprintf(`<a %shref="%s"%s>`, parts[1], html.EscapeString(tracked), parts[3])
	})
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none;" />`,
		html.EscapeString(TrackingURL(baseURL, campaignID, email, "open", "")))
	return out + pixel
}

// Template renders the per-recipient message of a job.
type Template struct {
	FromName    string
	From        string
	Subject     string
	Body        string
	Attachments []Attachment

	// Tracking is applied only when both are set.
	CampaignID      string
	TrackingBaseURL string
}

// Compose personalizes the subject and body for unit.
func (t *Template) Compose(unit domain.RecipientUnit) Message {
	body := RenderHTML(Personalize(t.Body, unit.Vars))
	if t.CampaignID != "" && t.TrackingBaseURL != "" {
		body = AddTracking(body, t.TrackingBaseURL, t.CampaignID, unit.Email)
	}
	return Message{
		FromName:    t.FromName,
		From:        t.From,
		To:          unit.Email,
		Cc:          unit.Cc,
		Subject:     Personalize(t.Subject, unit.Vars),
		HTML:        body,
		Text:        StripTags(body),
		Attachments: t.Attachments,
	}
}
