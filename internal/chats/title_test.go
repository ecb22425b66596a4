package chats

import (
	"testing"

	"bilichat/pkg/domain"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		fallback domain.Language
		want     domain.Language
	}{
		{"arabic text", "ما هي البرمجة؟", domain.LangEnglish, domain.LangArabic},
		{"english text", "what is programming?", domain.LangEnglish, domain.LangEnglish},
		{"mixed defaults to arabic", "what is البرمجة?", domain.LangEnglish, domain.LangArabic},
		{"latin with arabic preference", "hello", domain.LangArabic, domain.LangArabic},
		{"unknown preference", "hello", domain.Language("fr"), domain.LangEnglish},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectLanguage(tc.text, tc.fallback); got != tc.want {
				t.Fatalf("detectLanguage(%q, %q) = %q, want %q", tc.text, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestTruncateDoesNotSplitRunes(t *testing.T) {
	if got := truncate("short", 60); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := "مرحبا بالعالم مرحبا بالعالم مرحبا بالعالم"
	got := truncate(long, 20)
	if len(got) > 20 {
		t.Fatalf("truncate exceeded limit: %d bytes", len(got))
	}
	for _, r := range got {
		if r == '�' {
			t.Fatalf("truncate split a rune: %q", got)
		}
	}
}
