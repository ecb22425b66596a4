package domain

import "time"

// Language selects which localized prompt and message set is used.
type Language string

const (
	LangEnglish Language = "en"
	LangArabic  Language = "ar"
)

// ModelID is the enumerated set of models the API accepts.
type ModelID string

const (
	ModelLlama     ModelID = "llama"
	ModelMistral   ModelID = "mistral"
	ModelDeepseek  ModelID = "deepseek"
	ModelPhi3      ModelID = "phi3"
	ModelGemma     ModelID = "gemma"
	ModelQwen      ModelID = "qwen"
	ModelTinyllama ModelID = "tinyllama"
)

// KnownModel reports whether id is one of the accepted model identifiers.
func KnownModel(id ModelID) bool {
	switch id {
	case ModelLlama, ModelMistral, ModelDeepseek, ModelPhi3, ModelGemma, ModelQwen, ModelTinyllama:
		return true
	}
	return false
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Language     Language  `json:"language"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Chat is a persisted conversation thread owned by one user.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Model     ModelID   `json:"model"`
	Language  Language  `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// Message is one turn within a chat. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage is the wire form of a conversation turn as submitted by clients.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Summary holds the bilingual profile summary derived from a user's chats.
type Summary struct {
	UserID    string    `json:"userId"`
	English   string    `json:"en"`
	Arabic    string    `json:"ar"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ModelInfo describes one model advertised by the runtime.
type ModelInfo struct {
	ID       string  `json:"id"`
	Type     ModelID `json:"type"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Modified string  `json:"modified"`
}
