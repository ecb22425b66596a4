package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bilichat/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &ChatModel{}, &MessageModel{}, &SummaryModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "language", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateChat persists the chat and its initial messages in one transaction.
func (s *GormStore) CreateChat(chat domain.Chat) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := chatToModel(chat)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(chat.Messages) == 0 {
			return nil
		}
		messages := make([]MessageModel, 0, len(chat.Messages))
		for _, m := range chat.Messages {
			messages = append(messages, messageToModel(m))
		}
		return tx.Create(&messages).Error
	})
}

// GetChat returns a chat with its full message sequence in write order.
func (s *GormStore) GetChat(id string) (domain.Chat, bool, error) {
	var model ChatModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Chat{}, false, nil
		}
		return domain.Chat{}, false, err
	}
	messages, err := s.listMessages(id)
	if err != nil {
		return domain.Chat{}, false, err
	}
	chat := chatFromModel(model)
	chat.Messages = messages
	return chat, true, nil
}

// AppendMessages adds messages to an existing chat and bumps its updated_at.
func (s *GormStore) AppendMessages(chatID string, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ChatModel{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrChatNotFound
		}
		models := make([]MessageModel, 0, len(messages))
		for _, m := range messages {
			models = append(models, messageToModel(m))
		}
		if err := tx.Create(&models).Error; err != nil {
			return err
		}
		return tx.Model(&ChatModel{}).Where("id = ?", chatID).
			Update("updated_at", time.Now().UTC()).Error
	})
}

// ListChatsByUser returns a user's chats newest first, each with messages.
// limit <= 0 means no limit.
func (s *GormStore) ListChatsByUser(userID string, limit int) ([]domain.Chat, error) {
	query := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []ChatModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	chats := make([]domain.Chat, 0, len(models))
	for _, m := range models {
		chat := chatFromModel(m)
		messages, err := s.listMessages(m.ID)
		if err != nil {
			return nil, err
		}
		chat.Messages = messages
		chats = append(chats, chat)
	}
	return chats, nil
}

// DeleteChat removes all messages then the chat itself.
func (s *GormStore) DeleteChat(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", id).Delete(&MessageModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&ChatModel{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrChatNotFound
		}
		return nil
	})
}

// SaveSummary upserts the bilingual summary document.
func (s *GormStore) SaveSummary(sum domain.Summary) error {
	content, err := json.Marshal(map[string]string{
		"en": sum.English,
		"ar": sum.Arabic,
	})
	if err != nil {
		return err
	}
	model := SummaryModel{
		UserID:    sum.UserID,
		Content:   datatypes.JSON(content),
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&model).Error
}

// GetSummary returns the stored summary for a user.
func (s *GormStore) GetSummary(userID string) (domain.Summary, bool, error) {
	var model SummaryModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Summary{}, false, nil
		}
		return domain.Summary{}, false, err
	}
	return summaryFromModel(model), true, nil
}

func (s *GormStore) listMessages(chatID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.Where("chat_id = ?", chatID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(models))
	for _, m := range models {
		messages = append(messages, messageFromModel(m))
	}
	return messages, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Language:     string(u.Language),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Language:     domain.Language(m.Language),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func chatToModel(c domain.Chat) ChatModel {
	return ChatModel{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		Model:     string(c.Model),
		Language:  string(c.Language),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func chatFromModel(m ChatModel) domain.Chat {
	return domain.Chat{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		Model:     domain.ModelID(m.Model),
		Language:  domain.Language(m.Language),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(m domain.Message) MessageModel {
	return MessageModel{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func summaryFromModel(m SummaryModel) domain.Summary {
	var content map[string]string
	_ = json.Unmarshal(m.Content, &content)
	return domain.Summary{
		UserID:    m.UserID,
		English:   content["en"],
		Arabic:    content["ar"],
		UpdatedAt: m.UpdatedAt,
	}
}
