package domain

import (
	"sort"
	"strings"
	"time"
)

// ConversationType definition conversation type
type ConversationType string

const (
	// ConversationTypeDirect 1對1 對話
	ConversationTypeDirect ConversationType = "direct"
)

// MemberRole definition conversation member role
type MemberRole string

const (
	// RoleMember 一般成員
	RoleMember MemberRole = "member"
)

// ConversationMember 對話成員 (含已讀游標)
type ConversationMember struct {
	UserID     string     `bson:"user_id" json:"userId"`
	Role       MemberRole `bson:"role" json:"role"`
	JoinedAt   time.Time  `bson:"joined_at" json:"joinedAt"`
	LastReadAt *time.Time `bson:"last_read_at,omitempty" json:"lastReadAt,omitempty"`
}

// LastMessage denormalized snapshot of the newest message
type LastMessage struct {
	MessageID string    `bson:"message_id" json:"messageId"`
	SenderID  string    `bson:"sender_id" json:"senderId"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Conversation definition direct conversation
// MembersHash 是去重 key: 同一組 user pair 最多一筆未封存對話
type Conversation struct {
	ID          string               `bson:"_id" json:"id"`
	Type        ConversationType     `bson:"type" json:"type"`
	Name        string               `bson:"name,omitempty" json:"name,omitempty"`
	Members     []ConversationMember `bson:"members" json:"members"`
	MemberIDs   []string             `bson:"member_ids" json:"memberIds"`
	MembersHash string               `bson:"members_hash" json:"membersHash"`
	CreatedBy   string               `bson:"created_by" json:"createdBy"`
	Archived    bool                 `bson:"archived" json:"archived"`
	LastMessage *LastMessage         `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	CreatedAt   time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updated_at" json:"updatedAt"`
}

// OtherMemberID 回傳對話中另一位成員的 user id
func (c *Conversation) OtherMemberID(userID string) string {
	for _, id := range c.MemberIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// HasMember check user is conversation member
func (c *Conversation) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationView conversation with the other participant resolved
type ConversationView struct {
	Conversation
	OtherUser *PublicProfile `json:"otherUser,omitempty"`
}

// MembersHashOf deterministic fingerprint of an unordered user pair
// ids 排序後用 "_" 串接, 兩邊同時首發也會算出同一個 hash
func MembersHashOf(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// ConversationRoom logical room name for a conversation
func ConversationRoom(conversationID string) string {
	return "conversation_" + conversationID
}

// PersonalRoom logical room name for a user's personal channel
func PersonalRoom(userID string) string {
	return "user_" + userID
}
