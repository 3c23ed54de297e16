// Package i18n provides localized operator messages for the lock.
// Translations are embedded YAML files loaded through go-i18n.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Message IDs.
const (
	MsgGranted             = "granted"
	MsgDenied              = "denied"
	MsgEnterEnroll         = "enter_enroll"
	MsgExitEnroll          = "exit_enroll"
	MsgAdded               = "added"
	MsgRemoved             = "removed"
	MsgAddFailed           = "add_failed"
	MsgRemoveFailed        = "remove_failed"
	MsgWipeProgress        = "wipe_progress"
	MsgWipeComplete        = "wipe_complete"
	MsgReaderFault         = "reader_fault"
	MsgProvisionPrompt     = "provision_prompt"
	MsgProvisioned         = "provisioned"
	MsgRestartRequired     = "restart_required"
	MsgModeNormal          = "mode_normal"
	MsgModeEnroll          = "mode_enroll"
	MsgStatusUnprovisioned = "status_unprovisioned"
	MsgStatusSummary       = "status_summary"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	bundleErr  error
)

func loadBundle() (*i18n.Bundle, error) {
	bundleOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

		files, err := fs.ReadDir(localeFS, "locales")
		if err != nil {
			bundleErr = err
			return
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			data, err := localeFS.ReadFile("locales/" + f.Name())
			if err != nil {
				bundleErr = err
				return
			}
			if _, err := b.ParseMessageFileBytes(data, f.Name()); err != nil {
				bundleErr = fmt.Errorf("i18n: parse %s: %w", f.Name(), err)
				return
			}
		}
		bundle = b
	})
	return bundle, bundleErr
}

// Catalog translates message IDs into one language.
type Catalog struct {
	lang      string
	localizer *i18n.Localizer
}

// New returns a catalog for lang, e.g. "en" or "de-AT". Unknown languages
// fall back to English.
func New(lang string) (*Catalog, error) {
	b, err := loadBundle()
	if err != nil {
		return nil, err
	}
	return &Catalog{
		lang:      lang,
		localizer: i18n.NewLocalizer(b, lang),
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(lang string) *Catalog {
	c, err := New(lang)
	if err != nil {
		panic(err)
	}
	return c
}

// Lang returns the requested language.
func (c *Catalog) Lang() string {
	return c.lang
}

// T translates id. If the ID is unknown, the ID itself is returned.
func (c *Catalog) T(id string) string {
	return c.Tf(id, nil)
}

// Tf translates id, filling template fields from data.
func (c *Catalog) Tf(id string, data map[string]any) string {
	if c == nil || c.localizer == nil {
		return id
	}
	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}

// Languages lists the embedded translations.
func Languages() []string {
	b, err := loadBundle()
	if err != nil {
		return nil
	}
	tags := b.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}
