package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/apiserver/internal/storage"
)

type fakeObjects map[string]string

func (f fakeObjects) ReadObject(_ context.Context, key string) ([]byte, error) {
	if key == "broken/welcome.html" {
		return nil, errors.New("connection reset")
	}
	data, ok := f[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return []byte(data), nil
}

func TestLoadTemplates_NilStoreUsesDefaults(t *testing.T) {
	templates, err := LoadTemplates(context.Background(), nil, "templates/", nil)
	require.NoError(t, err)

	html, err := templates.Render(KindVerifyOtp, TemplateData{Email: "a@x.io", OTP: "000001"})
	require.NoError(t, err)
	assert.Contains(t, html, "000001")
}

func TestLoadTemplates_Override(t *testing.T) {
	objects := fakeObjects{"templates/reset_otp.html": "<b>code {{.OTP}} for {{.Email}}</b>"}

	templates, err := LoadTemplates(context.Background(), objects, "templates/", nil)
	require.NoError(t, err)

	html, err := templates.Render(KindResetOtp, TemplateData{Email: "a@x.io", OTP: "314159"})
	require.NoError(t, err)
	assert.Equal(t, "<b>code 314159 for a@x.io</b>", html)

	html, err = templates.Render(KindWelcome, TemplateData{Name: "A", Email: "a@x.io"})
	require.NoError(t, err)
	assert.Contains(t, html, "Welcome, A")
}

func TestLoadTemplates_ReadErrorKeepsDefault(t *testing.T) {
	templates, err := LoadTemplates(context.Background(), fakeObjects{}, "broken/", nil)
	require.NoError(t, err)

	html, err := templates.Render(KindWelcome, TemplateData{Name: "A"})
	require.NoError(t, err)
	assert.Contains(t, html, "Welcome, A")
}

func TestLoadTemplates_InvalidOverride(t *testing.T) {
	cases := map[string]string{
		"syntax":        "{{.OTP",
		"unknown field": "{{.Password}}",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			objects := fakeObjects{"templates/verify_otp.html": src}
			_, err := LoadTemplates(context.Background(), objects, "templates/", nil)
			require.Error(t, err)
		})
	}
}

func TestTemplateKey(t *testing.T) {
	assert.Equal(t, "templates/welcome.html", TemplateKey("templates/", KindWelcome))
}
