package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"", language.English},
		{"de-DE,de;q=0.9,en;q=0.8", language.German},
		{"en-US", language.English},
		{"fr-FR", language.English},
		{"not a header;;", language.English},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			base, _ := Match(tt.header).Base()
			want, _ := tt.want.Base()
			assert.Equal(t, want, base)
		})
	}
}

func TestTranslate(t *testing.T) {
	assert.Contains(t, Translate("de", KeyNotAllowed), "Mitglieder")
	assert.Contains(t, Translate("en", KeyNotAllowed), "members")
	assert.Contains(t, Translate("fr", KeyNotAllowed), "members")
	assert.Equal(t, "some.unknown.key", Translate("de", "some.unknown.key"))
}

func TestUILocales(t *testing.T) {
	assert.Equal(t, "de-DE de en", UILocales("de-DE,de;q=0.9,en;q=0.8"))
	assert.Equal(t, "", UILocales(""))
}
