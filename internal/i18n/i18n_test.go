package i18n

import (
	"testing"

	"agrovision/pkg/domain"
)

func TestTranslationLookup(t *testing.T) {
	if got := T("dashboard", domain.LangSpanish); got != "Panel" {
		t.Fatalf("es dashboard = %q", got)
	}
	if got := T("quotaReached", domain.LangEnglish); got != "Weekly scan limit reached. Please upgrade to Pro." {
		t.Fatalf("en quotaReached = %q", got)
	}
}

func TestUnknownLanguageFallsBackToEnglish(t *testing.T) {
	if got := T("dashboard", domain.Language("xx")); got != "Dashboard" {
		t.Fatalf("got %q, want English fallback", got)
	}
}

func TestUnknownKeyReturnsKey(t *testing.T) {
	if got := T("noSuchKey", domain.LangEnglish); got != "noSuchKey" {
		t.Fatalf("got %q, want the key itself", got)
	}
}

func TestEveryLanguageCoversEveryKey(t *testing.T) {
	reference := tables[domain.LangEnglish]
	for lang, table := range tables {
		for key := range reference {
			if _, ok := table[key]; !ok {
				t.Errorf("language %s is missing key %q", lang, key)
			}
		}
		for key := range table {
			if _, ok := reference[key]; !ok {
				t.Errorf("language %s has extra key %q", lang, key)
			}
		}
	}
}

func TestSupported(t *testing.T) {
	for _, lang := range []domain.Language{domain.LangEnglish, domain.LangSpanish, domain.LangFrench, domain.LangGerman, domain.LangHindi, domain.LangChinese} {
		if !Supported(lang) {
			t.Errorf("Supported(%s) = false", lang)
		}
	}
	if Supported(domain.Language("xx")) {
		t.Error("Supported(xx) = true")
	}
}
