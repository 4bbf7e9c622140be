package indicator

import (
	"os"
	"strings"
)

type messages struct {
	capturing string
	waiting   string
	errorText string
}

// catalog holds indicator text per language subtag.
var catalog = map[string]messages{
	"en": {capturing: "Listening…", waiting: "Waiting for speech…", errorText: "Something went wrong"},
	"de": {capturing: "Höre zu…", waiting: "Warte auf Sprache…", errorText: "Etwas ist schiefgelaufen"},
	"es": {capturing: "Escuchando…", waiting: "Esperando voz…", errorText: "Algo salió mal"},
	"fr": {capturing: "Écoute…", waiting: "En attente de parole…", errorText: "Un problème est survenu"},
}

// indicatorMessagesFromEnv follows the POSIX lookup order LC_ALL,
// LC_MESSAGES, LANG.
func indicatorMessagesFromEnv() messages {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return messagesFor(v)
		}
	}
	return catalog["en"]
}

// messagesFor maps a locale such as "de_DE.UTF-8" or "fr-CA" to its
// catalog entry, falling back to English.
func messagesFor(locale string) messages {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "_-.@"); i >= 0 {
		lang = lang[:i]
	}
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog["en"]
}
