package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/shoenig/test/must"

	"github.com/abennett/rolltree/pkg/rolltree"
)

func TestDefaultLocales(t *testing.T) {
	locales := Default().Locales()
	must.EqOp(t, BaseLocale, locales[0])
	must.SliceContains(t, locales, "de-DE")
	must.SliceContains(t, locales, "fr-FR")
}

func TestFormat(t *testing.T) {
	en := Default().Localizer("en-US")
	must.EqOp(t, "+2[Additional Bonus]", en.Format(rolltree.KeyAdditionalBonus, map[string]any{"bonus": "+2"}))
	must.EqOp(t, "1/2", en.Format(rolltree.KeyPartIndex, map[string]any{"partIndex": 1, "partCount": 2}))
	must.EqOp(t, "unknown.key", en.Format("unknown.key", nil))

	fr := Default().Localizer("fr-CA")
	must.EqOp(t, "fr-FR", fr.Locale())
	must.EqOp(t, "2 sur 3", fr.Format(rolltree.KeyPartIndex, map[string]any{"partIndex": 2, "partCount": 3}))
	// Missing from the French catalog.
	must.EqOp(t, "Bonus", fr.Format("dialog.bonus", nil))
}

func TestLocalizerFallback(t *testing.T) {
	must.EqOp(t, BaseLocale, Default().Localizer("not a locale!").Locale())
	must.EqOp(t, BaseLocale, Default().Localizer("ja-JP").Locale())
	must.EqOp(t, "de-DE", Default().Localizer("de").Locale())
}

func TestLoadFSRequiresBase(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/de-DE.yaml": {Data: []byte("locale: de-DE\nmessages:\n  a: b\n")},
	}
	_, err := LoadFS(fsys)
	must.ErrorContains(t, err, "base locale")

	fsys["locales/en-US.yaml"] = &fstest.MapFile{Data: []byte("messages:\n  a: b\n")}
	_, err = LoadFS(fsys)
	must.ErrorContains(t, err, "locale is required")
}

func TestTreeUsesLocalizer(t *testing.T) {
	tree := rolltree.New("1d20", nil, rolltree.Config{Localizer: Default().Localizer("de-DE")})
	_, err := tree.Populate("1d20")
	must.NoError(t, err)
	rolls := tree.Assemble(tree.Resolve(), nil, "2")
	must.EqOp(t, "1d20 +2[Zusätzlicher Bonus]", rolls[0].Formula)
}
