package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/accountd/apiserver/internal/storage"
)

const defaultWelcome = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Welcome, {{.Name}}</h2>
  <p>Your account has been created with email id: <strong>{{.Email}}</strong></p>
</body>
</html>`

const defaultVerify = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Verify your email</h2>
  <p>You are just one step away from verifying your account for <strong>{{.Email}}</strong>.</p>
  <p>Use the code below to verify your account. It is valid for 10 minutes.</p>
  <p style="font-size: 24px; letter-spacing: 4px;"><strong>{{.OTP}}</strong></p>
</body>
</html>`

const defaultReset = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Reset your password</h2>
  <p>We received a password reset request for your account <strong>{{.Email}}</strong>.</p>
  <p>Use the code below to reset your password. It is valid for 15 minutes.</p>
  <p style="font-size: 24px; letter-spacing: 4px;"><strong>{{.OTP}}</strong></p>
</body>
</html>`

// TemplateData is the value every email template is executed with.
type TemplateData struct {
	Name  string
	Email string
	OTP   string
}

// ObjectReader reads template overrides from object storage.
type ObjectReader interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
}

// Templates renders the HTML body for each email kind.
type Templates struct {
	byKind map[Kind]*template.Template
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() *Templates {
	return &Templates{byKind: map[Kind]*template.Template{
		KindWelcome:   template.Must(template.New(string(KindWelcome)).Parse(defaultWelcome)),
		KindVerifyOtp: template.Must(template.New(string(KindVerifyOtp)).Parse(defaultVerify)),
		KindResetOtp:  template.Must(template.New(string(KindResetOtp)).Parse(defaultReset)),
	}}
}

// LoadTemplates starts from the built-in templates and replaces each kind
// that has an object at <prefix><kind>.html. A missing or unreadable object
// keeps the default; an object that does not parse is an error.
func LoadTemplates(ctx context.Context, objects ObjectReader, prefix string, logger *slog.Logger) (*Templates, error) {
	templates := DefaultTemplates()
	if objects == nil {
		return templates, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, kind := range Kinds() {
		key := TemplateKey(prefix, kind)
		data, err := objects.ReadObject(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.WarnContext(ctx, "email template unavailable, using default", "key", key, "error", err)
			continue
		}
		if err := templates.Override(kind, string(data)); err != nil {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
		logger.InfoContext(ctx, "email template loaded", "key", key)
	}
	return templates, nil
}

// TemplateKey is the object key holding the override for kind.
func TemplateKey(prefix string, kind Kind) string {
	return prefix + string(kind) + ".html"
}

// Override parses src and uses it for kind.
func (t *Templates) Override(kind Kind, src string) error {
	tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(src)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(&bytes.Buffer{}, TemplateData{}); err != nil {
		return err
	}
	t.byKind[kind] = tmpl
	return nil
}

// Render executes the template for kind.
func (t *Templates) Render(kind Kind, data TemplateData) (string, error) {
	tmpl, ok := t.byKind[kind]
	if !ok {
		return "", fmt.Errorf("no template for %s", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
