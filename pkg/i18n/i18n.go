// Package i18n formats user-facing roll labels from embedded locale
// catalogs. Messages use named {param} placeholders; numeric parameters
// are printed for the locale.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the locale every other catalog falls back to.
const BaseLocale = "en-US"

//go:embed locales/*.yaml
var embeddedFS embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle holds the catalogs of every known locale.
type Bundle struct {
	tags     []language.Tag
	catalogs []map[string]string
	matcher  language.Matcher
}

var defaultBundle *Bundle

func init() {
	b, err := LoadFS(embeddedFS)
	if err != nil {
		panic(fmt.Sprintf("loading embedded locales: %v", err))
	}
	defaultBundle = b
}

// Default returns the bundle of embedded catalogs.
func Default() *Bundle {
	return defaultBundle
}

// LoadFS loads every locales/*.yaml catalog of fsys. The base locale must
// be among them.
func LoadFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	sort.Strings(paths)

	byLocale := map[string]map[string]string{}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		locale := strings.TrimSpace(file.Locale)
		if locale == "" {
			return nil, fmt.Errorf("catalog %s: locale is required", path)
		}
		if _, exists := byLocale[locale]; exists {
			return nil, fmt.Errorf("catalog %s: locale %q defined twice", path, locale)
		}
		byLocale[locale] = file.Messages
	}
	base, ok := byLocale[BaseLocale]
	if !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	b := &Bundle{}
	b.add(BaseLocale, base)
	locales := make([]string, 0, len(byLocale))
	for locale := range byLocale {
		if locale != BaseLocale {
			locales = append(locales, locale)
		}
	}
	sort.Strings(locales)
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		b.tags = append(b.tags, tag)
		b.catalogs = append(b.catalogs, byLocale[locale])
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

func (b *Bundle) add(locale string, messages map[string]string) {
	b.tags = append(b.tags, language.MustParse(locale))
	b.catalogs = append(b.catalogs, messages)
}

// Locales returns the locale tags of the bundle, base locale first.
func (b *Bundle) Locales() []string {
	out := make([]string, len(b.tags))
	for i, tag := range b.tags {
		out[i] = tag.String()
	}
	return out
}

// Localizer returns a localizer for the closest supported match of locale.
// Unparseable or unknown locales get the base locale.
func (b *Bundle) Localizer(locale string) *Localizer {
	idx := 0
	if tag, err := language.Parse(locale); err == nil {
		_, idx, _ = b.matcher.Match(tag)
	}
	return &Localizer{
		tag:      b.tags[idx],
		messages: b.catalogs[idx],
		base:     b.catalogs[0],
		printer:  message.NewPrinter(b.tags[idx]),
	}
}

type Localizer struct {
	tag      language.Tag
	messages map[string]string
	base     map[string]string
	printer  *message.Printer
}

func (l *Localizer) Locale() string {
	return l.tag.String()
}

// Format looks up key and substitutes params. A key missing from the
// locale falls back to the base locale, then to the key itself.
func (l *Localizer) Format(key string, params map[string]any) string {
	msg, ok := l.messages[key]
	if !ok {
		msg, ok = l.base[key]
	}
	if !ok {
		return key
	}
	if len(params) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(params)*2)
	for name, v := range params {
		pairs = append(pairs, "{"+name+"}", l.printer.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
