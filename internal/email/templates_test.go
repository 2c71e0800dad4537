package email

import (
	"strings"
	"testing"
	"time"
)

func baseMessage() MagicLinkMessage {
	return MagicLinkMessage{
		To:           "alice@example.com",
		MagicLink:    "https://auth.example/magic?t=abc123",
		Code:         "482913",
		CodeEntryURL: "https://auth.example/code?email=alice%40example.com&c=482913",
		TTL:          10 * time.Minute,
		Branding:     Branding{AppName: "Demo App"},
	}
}

func TestRender_DefaultSubjectUsesAppName(t *testing.T) {
	subject, html, text, err := Render(baseMessage())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Your sign-in link for Demo App" {
		t.Fatalf("subject = %q", subject)
	}
	for _, body := range []string{html, text} {
		if !strings.Contains(body, "https://auth.example/magic?t=abc123") {
			t.Fatal("body missing magic link")
		}
		if !strings.Contains(body, "482913") {
			t.Fatal("body missing code")
		}
		if !strings.Contains(body, "10 minutes") {
			t.Fatal("body missing ttl")
		}
	}
}

func TestRender_SubjectOverride(t *testing.T) {
	msg := baseMessage()
	msg.Branding.Subject = "Tu acceso"
	subject, _, _, err := Render(msg)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Tu acceso" {
		t.Fatalf("subject = %q", subject)
	}
}

func TestRender_DefaultsWithoutBranding(t *testing.T) {
	msg := baseMessage()
	msg.Branding = Branding{}
	subject, html, _, err := Render(msg)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(subject, "your account") {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(html, "#4f46e5") {
		t.Fatal("html missing default button color")
	}
	if strings.Contains(html, "cid:logo.png") {
		t.Fatal("html references logo without one attached")
	}
}

func TestRender_LogoEmbedsCID(t *testing.T) {
	msg := baseMessage()
	msg.Branding.LogoPNG = []byte{0x89, 'P', 'N', 'G'}
	_, html, _, err := Render(msg)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "cid:logo.png") {
		t.Fatal("html missing cid reference for logo")
	}
}

func TestHumanTTL(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "a few minutes"},
		{45 * time.Second, "1 minute"},
		{time.Minute, "1 minute"},
		{15 * time.Minute, "15 minutes"},
		{time.Hour, "1 hour"},
		{3 * time.Hour, "3 hours"},
	}
	for _, c := range cases {
		if got := humanTTL(c.d); got != c.want {
			t.Errorf("humanTTL(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
