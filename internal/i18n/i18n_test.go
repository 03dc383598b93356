package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalogs(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "ru"}, m.Languages())
	assert.Equal(t, "No progress record exists at this address.", m.Translator("en").T("errors.record_not_found"))
	assert.Equal(t, "Запись прогресса уже создана.", m.Translator("ru").T("errors.already_initialized"))
}

func TestCatalogs_HaveSameKeys(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	for key := range m.translations["en"] {
		assert.Contains(t, m.translations["ru"], key, "ru catalog is missing %s", key)
	}
	assert.Len(t, m.translations["ru"], len(m.translations["en"]))
}

func TestTranslator_FallsBack(t *testing.T) {
	fsys := fstest.MapFS{
		"en.yaml": {Data: []byte("en:\n  errors:\n    storage: down\n    internal: oops\n")},
		"ru.yaml": {Data: []byte("ru:\n  errors:\n    storage: недоступно\n")},
	}

	m, err := LoadFS(fsys, ".", "")
	require.NoError(t, err)

	ru := m.Translator("RU ")
	assert.Equal(t, "ru", ru.Lang())
	assert.Equal(t, "недоступно", ru.T("errors.storage"))
	assert.Equal(t, "oops", ru.T("errors.internal"))
	assert.Equal(t, "errors.unknown", ru.T("errors.unknown"))

	assert.Equal(t, "en", m.Translator("de").Lang())
}

func TestLoadFS_MissingDefaultLanguage(t *testing.T) {
	fsys := fstest.MapFS{"ru.yaml": {Data: []byte("ru:\n  a: b\n")}}

	_, err := LoadFS(fsys, ".", "en")
	assert.Error(t, err)
}

func TestNegotiate(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	cases := map[string]string{
		"":                          "en",
		"ru":                        "ru",
		"ru-RU,ru;q=0.9":            "ru",
		"de-DE, en;q=0.5, ru;q=0.8": "ru",
		"fr, *;q=0.1":               "en",
		"ru;q=0, en":                "en",
	}

	for header, want := range cases {
		assert.Equal(t, want, m.Negotiate(header).Lang(), "header %q", header)
	}
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.Equal(t, "errors.storage", m.Negotiate("en").T("errors.storage"))
}
