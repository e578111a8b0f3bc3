package domain

import (
	"encoding/json"
	"sync"
)

// Event websocket event name
type Event string

// Inbound events
const (
	// EventConnectionInit triggers the presence online transition
	EventConnectionInit Event = "connection:init"
	// EventConnectionDisconnect explicit logout path
	EventConnectionDisconnect Event = "connection:disconnect"
	// EventConversationJoin join the logical conversation room
	EventConversationJoin Event = "conversation:join"
	// EventConversationLeave leave the logical conversation room
	EventConversationLeave Event = "conversation:leave"
	// EventMessageSend send a direct message
	EventMessageSend Event = "message:send"
	// EventMessageDelete delete for me / for everyone
	EventMessageDelete Event = "message:delete"
	// EventChatClear bulk hide every message with one counterpart
	EventChatClear Event = "chat:clear"
	// EventUserUpdateProfile profile mutation
	EventUserUpdateProfile Event = "user:updateProfile"
)

// Outbound events
const (
	// EventMessageReceive fan-out of a new message to the recipient
	EventMessageReceive Event = "message:receive"
	// EventMessageDeleted fan-out of a delete-for-everyone
	EventMessageDeleted Event = "message:deleted"
	// EventUserStatus presence broadcast
	EventUserStatus Event = "user:status"
	// EventUserProfileUpdated profile change broadcast
	EventUserProfileUpdated Event = "user:profileUpdated"
	// EventUserLeft a user left a conversation room
	EventUserLeft Event = "user:left"
)

// WSRequest websocket request envelope
// Data 依 Event 解成對應的 payload struct, 未知 event 直接拒絕
type WSRequest struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSResponse websocket response / ack envelope
type WSResponse struct {
	Event   Event                  `json:"event"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
	ErrCode ErrCode                `json:"errCode,omitempty"`
}

// OkResponse build a success ack for an event
func OkResponse(event Event, payload map[string]interface{}) WSResponse {
	return WSResponse{Event: event, Success: true, Payload: payload}
}

// FailResponse build a failure ack carrying the taxonomy code
func FailResponse(event Event, err error) WSResponse {
	return WSResponse{
		Event:   event,
		Success: false,
		Error:   err.Error(),
		ErrCode: CodeOf(err),
	}
}

// ConnectionInitPayload connection:init
type ConnectionInitPayload struct {
	PreviouslyConnected bool `json:"previouslyConnected"`
}

// ConversationRoomPayload conversation:join / conversation:leave
type ConversationRoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload message:send
type SendMessagePayload struct {
	To          string       `json:"to"`
	Content     string       `json:"content"`
	ReplyTo     string       `json:"replyTo,omitempty"`
	RequestID   string       `json:"requestId"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// DeleteMessagePayload message:delete
type DeleteMessagePayload struct {
	MessageID   string `json:"messageId"`
	ForEveryone bool   `json:"forEveryone"`
}

// ClearChatPayload chat:clear
type ClearChatPayload struct {
	WithUserID string `json:"withUserId"`
}

// StatusPayload user:status broadcast
type StatusPayload struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// SessionConn transport write side of one live connection
type SessionConn interface {
	WriteResponse(resp WSResponse) error
}

// Session one live transport connection of a user
// rooms 記錄這條連線在 transport 層實際加入過的房間,
// 與 Room Manager 的 logical membership 是兩回事
type Session struct {
	ID     string
	UserID string

	conn  SessionConn
	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewSession create a session wrapping one transport connection
func NewSession(id, userID string, conn SessionConn) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
		conn:   conn,
		rooms:  make(map[string]struct{}),
	}
}

// Send write a response to this connection
// 同條連線的寫入需要序列化, websocket conn 不允許並發寫
func (s *Session) Send(resp WSResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteResponse(resp)
}

// JoinRoom record the transport-level join
func (s *Session) JoinRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = struct{}{}
}

// LeaveRoom record the transport-level leave
func (s *Session) LeaveRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

// InRoom check the session has joined a room at the transport level
func (s *Session) InRoom(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

// Rooms snapshot of the transport-level room set
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}
