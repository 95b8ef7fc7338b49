package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Translator holds one language's message catalog.
type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, or the key itself when missing.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Lang() string { return t.lang }

// RTL reports whether the language is written right to left.
func (t *Translator) RTL() bool {
	switch t.lang {
	case "fa", "ar", "he":
		return true
	}
	return false
}

// Catalog picks a Translator from an Accept-Language header.
// The first language passed to NewCatalog is the fallback.
type Catalog struct {
	tags    []language.Tag
	byIndex []*Translator
	matcher language.Matcher
}

func NewCatalog(fsys fs.FS, langs ...string) (*Catalog, error) {
	if len(langs) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}
	c := &Catalog{}
	for _, l := range langs {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", l, err)
		}
		tr, err := NewTranslator(fsys, strings.ToLower(l))
		if err != nil {
			return nil, err
		}
		c.tags = append(c.tags, tag)
		c.byIndex = append(c.byIndex, tr)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// MustDefault loads the embedded en and fa catalogs.
func MustDefault() *Catalog {
	c, err := NewCatalog(LocalesFS, "en", "fa")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Pick(acceptLanguage string) *Translator {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.byIndex[0]
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return c.byIndex[0]
	}
	return c.byIndex[idx]
}
