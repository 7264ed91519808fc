package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys returned to clients.
const (
	KeyNotAllowed     = "piratenlogin.not_allowed"
	KeySignupRequired = "piratenlogin.signup_required"
	KeyProviderError  = "piratenlogin.provider_error"
	KeyDisabled       = "piratenlogin.disabled"
)

var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.German,
}

var (
	matcher = language.NewMatcher(supported)
	cat     = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	set := func(tag language.Tag, key, msg string) {
		_ = b.SetString(tag, key, msg)
	}

	set(language.English, KeyNotAllowed, "Sorry, only members of the Piratenpartei Deutschland may log in here.")
	set(language.German, KeyNotAllowed, "Leider dürfen sich hier nur Mitglieder der Piratenpartei Deutschland anmelden.")

	set(language.English, KeySignupRequired, "Please choose a username to finish creating your account.")
	set(language.German, KeySignupRequired, "Bitte wähle einen Benutzernamen, um dein Konto fertig anzulegen.")

	set(language.English, KeyProviderError, "The login service reported an error. Please try again.")
	set(language.German, KeyProviderError, "Der Anmeldedienst hat einen Fehler gemeldet. Bitte versuche es erneut.")

	set(language.English, KeyDisabled, "Login with Piratenlogin is disabled.")
	set(language.German, KeyDisabled, "Die Anmeldung über Piratenlogin ist deaktiviert.")

	return b
}

// Match picks the best supported language for an Accept-Language header.
func Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Translate renders key in the best language for acceptLanguage. Unknown
// keys are returned unchanged.
func Translate(acceptLanguage, key string) string {
	p := message.NewPrinter(Match(acceptLanguage), message.Catalog(cat))
	return p.Sprintf(key)
}

// UILocales converts an Accept-Language header into the space separated
// BCP 47 list used by the OIDC ui_locales parameter, in preference order.
func UILocales(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		s := t.String()
		if s == "und" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return strings.Join(out, " ")
}
