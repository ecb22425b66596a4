// Package i18n holds the English/Arabic strings surfaced to end users.
// Server-side detail stays in logs; clients only ever see these messages.
package i18n

import (
	"strings"

	"bilichat/pkg/domain"
)

var messages = map[domain.Language]map[string]string{
	domain.LangEnglish: {
		"auth_required":        "Authentication required",
		"auth_invalid_token":   "Invalid token",
		"error_invalid_input":  "Invalid input",
		"error_not_found":      "Not found",
		"error_server":         "Server error",
		"chat_saved":           "Chat saved",
		"chat_deleted":         "Chat deleted",
		"fallback_no_question": "Please ask a question.",
	},
	domain.LangArabic: {
		"auth_required":        "المصادقة مطلوبة",
		"auth_invalid_token":   "رمز غير صالح",
		"error_invalid_input":  "إدخال غير صالح",
		"error_not_found":      "غير موجود",
		"error_server":         "خطأ في الخادم",
		"chat_saved":           "تم حفظ المحادثة",
		"chat_deleted":         "تم حذف المحادثة",
		"fallback_no_question": "من فضلك أدخل سؤالاً.",
	},
}

// T returns the message for key in lang, falling back to English,
// then to the key itself so a missing entry is still visible.
func T(lang domain.Language, key string) string {
	if table, ok := messages[lang]; ok {
		if msg, ok := table[key]; ok {
			return msg
		}
	}
	if msg, ok := messages[domain.LangEnglish][key]; ok {
		return msg
	}
	return key
}

// FromAcceptLanguage maps an Accept-Language header to a supported language.
func FromAcceptLanguage(header string) domain.Language {
	for _, part := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(part))
		if i := strings.IndexAny(tag, ";-"); i >= 0 {
			tag = tag[:i]
		}
		switch tag {
		case "ar":
			return domain.LangArabic
		case "en":
			return domain.LangEnglish
		}
	}
	return domain.LangEnglish
}
