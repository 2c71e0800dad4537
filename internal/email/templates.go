package email

import (
	"fmt"
	htemplate "html/template"
	"strings"
	ttemplate "text/template"
	"time"
)

// Templates por defecto del email de sign-in. El branding del client
// (nombre, color del botón, logo) se inyecta como variables.

const defaultSubject = "Your sign-in link for {{.AppName}}"

const defaultHTMLTmpl = `<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#f4f4f7;font-family:Helvetica,Arial,sans-serif;">
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
    <tr><td align="center" style="padding:24px;">
      <table role="presentation" width="480" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;padding:32px;">
        {{if .HasLogo}}<tr><td align="center" style="padding-bottom:16px;"><img src="cid:logo.png" alt="{{.AppName}}" height="48"></td></tr>{{end}}
        <tr><td align="center" style="font-size:20px;font-weight:bold;color:#333;padding-bottom:8px;">Sign in to {{.AppName}}</td></tr>
        <tr><td align="center" style="font-size:14px;color:#555;padding-bottom:24px;">Click the button below to sign in. This link is valid for {{.TTL}}.</td></tr>
        <tr><td align="center" style="padding-bottom:24px;">
          <a href="{{.MagicLink}}" style="background:{{.ButtonColor}};color:#ffffff;text-decoration:none;padding:12px 32px;border-radius:6px;font-size:16px;display:inline-block;">Sign in</a>
        </td></tr>
        <tr><td align="center" style="font-size:14px;color:#555;padding-bottom:8px;">Or enter this code{{if .CodeEntryURL}} at <a href="{{.CodeEntryURL}}">the code entry page</a>{{end}}:</td></tr>
        <tr><td align="center" style="font-size:28px;letter-spacing:6px;font-weight:bold;color:#333;padding-bottom:24px;">{{.Code}}</td></tr>
        <tr><td align="center" style="font-size:12px;color:#999;">If you didn't request this, you can safely ignore this email.</td></tr>
      </table>
    </td></tr>
  </table>
</body>
</html>`

const defaultTextTmpl = `Sign in to {{.AppName}}

Open this link to sign in (valid for {{.TTL}}):

{{.MagicLink}}

Or enter this code: {{.Code}}
{{if .CodeEntryURL}}
Code entry page: {{.CodeEntryURL}}
{{end}}
If you didn't request this, you can safely ignore this email.
`

var (
	htmlTmpl    = htemplate.Must(htemplate.New("signin_html").Parse(defaultHTMLTmpl))
	textTmpl    = ttemplate.Must(ttemplate.New("signin_text").Parse(defaultTextTmpl))
	subjectTmpl = ttemplate.Must(ttemplate.New("signin_subject").Parse(defaultSubject))
)

type templateVars struct {
	AppName      string
	MagicLink    string
	Code         string
	CodeEntryURL string
	TTL          string
	ButtonColor  string
	HasLogo      bool
}

func buildVars(msg MagicLinkMessage) templateVars {
	v := templateVars{
		AppName:      msg.Branding.AppName,
		MagicLink:    msg.MagicLink,
		Code:         msg.Code,
		CodeEntryURL: msg.CodeEntryURL,
		TTL:          humanTTL(msg.TTL),
		ButtonColor:  msg.Branding.ButtonColor,
		HasLogo:      len(msg.Branding.LogoPNG) > 0,
	}
	if v.AppName == "" {
		v.AppName = "your account"
	}
	if v.ButtonColor == "" {
		v.ButtonColor = "#4f46e5"
	}
	return v
}

// Render genera subject, HTML y texto plano para el mensaje.
func Render(msg MagicLinkMessage) (subject, html, text string, err error) {
	vars := buildVars(msg)

	if msg.Branding.Subject != "" {
		subject = msg.Branding.Subject
	} else {
		var sb strings.Builder
		if err = subjectTmpl.Execute(&sb, vars); err != nil {
			return "", "", "", fmt.Errorf("email: render subject: %w", err)
		}
		subject = sb.String()
	}

	var hb strings.Builder
	if err = htmlTmpl.Execute(&hb, vars); err != nil {
		return "", "", "", fmt.Errorf("email: render html: %w", err)
	}

	var tb strings.Builder
	if err = textTmpl.Execute(&tb, vars); err != nil {
		return "", "", "", fmt.Errorf("email: render text: %w", err)
	}

	return subject, hb.String(), tb.String(), nil
}

func humanTTL(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if d < time.Hour {
		m := int(d.Round(time.Minute) / time.Minute)
		if m <= 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	h := int(d.Round(time.Hour) / time.Hour)
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}
