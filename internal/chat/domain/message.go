package domain

import (
	"time"

	"direct_chat_service/pkg"
)

// MaxAttachments 單則訊息附件上限
const MaxAttachments = 10

// Attachment pass-through attachment metadata
type Attachment struct {
	Name string `bson:"name" json:"name"`
	URL  string `bson:"url" json:"url"`
}

// Message definition one direct message
// 軟刪除有兩個正交欄位: DeletedFor 是單一 viewer 的隱藏,
// IsDeleted 是 sender 發起、對所有人生效的 tombstone
type Message struct {
	ID             string       `bson:"_id" json:"id"`
	ConversationID string       `bson:"conversation_id" json:"conversationId"`
	SenderID       string       `bson:"sender_id" json:"senderId"`
	RecipientID    string       `bson:"recipient_id" json:"recipientId"`
	Content        string       `bson:"content" json:"content"`
	RequestID      string       `bson:"request_id" json:"requestId"`
	ReplyTo        string       `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	Attachments    []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	IsDeleted      bool         `bson:"is_deleted" json:"isDeleted"`
	DeletedAt      *time.Time   `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
	DeletedBy      string       `bson:"deleted_by,omitempty" json:"deletedBy,omitempty"`
	DeletedFor     []string     `bson:"deleted_for,omitempty" json:"deletedFor,omitempty"`
	CreatedAt      time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updatedAt"`
}

// HiddenFor check message is hidden for the viewer
// tombstone 優先於個人隱藏
func (m *Message) HiddenFor(viewerID string) bool {
	if m.IsDeleted {
		return true
	}
	return pkg.Contains(m.DeletedFor, viewerID)
}

// MessageView message with sender/recipient profiles resolved
type MessageView struct {
	Message
	Sender    *PublicProfile `json:"sender,omitempty"`
	Recipient *PublicProfile `json:"recipient,omitempty"`
}

// MessagePage one page of conversation history
type MessagePage struct {
	Messages        []MessageView `json:"messages"`
	Total           int64         `json:"total"`
	Page            int           `json:"page"`
	TotalPages      int           `json:"totalPages"`
	HasNextPage     bool          `json:"hasNextPage"`
	HasPreviousPage bool          `json:"hasPreviousPage"`
}

// SendResult the acknowledgment of one message:send
// 同一個 (sender, requestId) 重送時, 這份原始 ack 是唯一權威結果
type SendResult struct {
	Message      MessageView  `json:"message"`
	Conversation Conversation `json:"conversation"`
}

// DeletionPayload fan-out payload for message:deleted
type DeletionPayload struct {
	MessageID   string `json:"messageId"`
	ForEveryone bool   `json:"forEveryone"`
	DeletedBy   string `json:"deletedBy,omitempty"`
	DeletedAt   string `json:"deletedAt,omitempty"`
}
