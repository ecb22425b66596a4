package chats

import (
	"unicode"
	"unicode/utf8"

	"bilichat/pkg/domain"
)

const (
	maxTitleLen   = 60
	titleFallback = 50
)

var titlePrompts = map[domain.Language]string{
	domain.LangEnglish: "You are an AI assistant. Read the following question and generate a short, clear title (3-6 words only) that summarizes the main topic. Do not use quotes, asterisks, dashes, or any special characters or markdown formatting. Just plain text title:\n\n",
	domain.LangArabic:  "أنت مساعد ذكي. اقرأ السؤال التالي وأنشئ عنواناً قصيراً واضحاً (3-6 كلمات فقط) يلخص الموضوع الرئيسي. لا تستخدم علامات تنصيص أو أي رموز خاصة مثل النجوم أو الشرطات. العنوان فقط بدون أي تنسيق:\n\n",
}

// detectLanguage picks Arabic when the text contains Arabic-range code
// points, overriding the stored preference.
func detectLanguage(text string, fallback domain.Language) domain.Language {
	for _, r := range text {
		if unicode.Is(unicode.Arabic, r) {
			return domain.LangArabic
		}
	}
	if fallback == domain.LangArabic {
		return domain.LangArabic
	}
	return domain.LangEnglish
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
