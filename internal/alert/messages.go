package alert

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"trace-rescue/internal/core/models"
	"trace-rescue/internal/util/timezone"
)

//go:embed locales/*.json
var localeFS embed.FS

// Message IDs in the locale files.
const (
	msgInstant      = "InstantMessage"
	msgEmailSubject = "EmailSubject"
	msgEmailBody    = "EmailBody"
)

// Messages renders the alert texts in one language.
type Messages struct {
	localizer *i18n.Localizer
}

// NewMessages loads the embedded locales. Unknown languages fall back to English.
func NewMessages(lang string) (*Messages, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}
	for _, e := range entries {
		p := path.Join("locales", e.Name())
		data, err := localeFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
	}

	return &Messages{localizer: i18n.NewLocalizer(bundle, lang, "en")}, nil
}

func (m *Messages) render(id string, p models.AlertPayload) string {
	out, err := m.localizer.Localize(&i18n.LocalizeConfig{
		MessageID: id,
		TemplateData: map[string]string{
			"Name":     p.PersonName,
			"Time":     timezone.Human(p.Timestamp),
			"Location": p.Location,
		},
	})
	if err != nil {
		log.Warnf("Failed to localize %s: %v", id, err)
		return id
	}
	return out
}

// InstantMessage is the text sent to every messaging recipient.
func (m *Messages) InstantMessage(p models.AlertPayload) string {
	return m.render(msgInstant, p)
}

// EmailSubject is the fixed email subject line.
func (m *Messages) EmailSubject() string {
	return m.render(msgEmailSubject, models.AlertPayload{})
}

// EmailBody is the plain text email body.
func (m *Messages) EmailBody(p models.AlertPayload) string {
	return m.render(msgEmailBody, p)
}
