package domain

import "errors"

// ErrCode websocket/REST error code taxonomy
type ErrCode string

const (
	// CodeInvalidArgument malformed or missing argument, rejected locally
	CodeInvalidArgument ErrCode = "INVALID_ARGUMENT"
	// CodeNotFound conversation/message/user absent or caller not a member
	CodeNotFound ErrCode = "NOT_FOUND"
	// CodeRecipientNotFound message:send recipient does not resolve
	CodeRecipientNotFound ErrCode = "RECIPIENT_NOT_FOUND"
	// CodeEmptyContent content empty after trimming
	CodeEmptyContent ErrCode = "EMPTY_CONTENT"
	// CodeInvalidReplyTarget replyTo not a message of this sender/recipient pair
	CodeInvalidReplyTarget ErrCode = "INVALID_REPLY_TARGET"
	// CodeTooManyAttachments attachment list over the cap
	CodeTooManyAttachments ErrCode = "TOO_MANY_ATTACHMENTS"
	// CodeNotAuthorized caller may not perform the operation
	CodeNotAuthorized ErrCode = "NOT_AUTHORIZED"
	// CodeDuplicateRequestID retried send, the original ack is authoritative
	CodeDuplicateRequestID ErrCode = "DUPLICATE_REQUEST_ID"
	// CodeConversationExists create race, internal signal triggering a re-lookup
	CodeConversationExists ErrCode = "CONVERSATION_EXISTS"
	// CodeUnavailable store or transport failure, safe to retry
	CodeUnavailable ErrCode = "UNAVAILABLE"
)

// ChatError error carrying a taxonomy code across the pipeline boundary
type ChatError struct {
	Code    ErrCode
	Message string
}

func (e *ChatError) Error() string {
	return e.Message
}

// NewChatError create a coded error
func NewChatError(code ErrCode, msg string) *ChatError {
	return &ChatError{Code: code, Message: msg}
}

// CodeOf 取出錯誤的 taxonomy code, 非 ChatError 一律視為 UNAVAILABLE
func CodeOf(err error) ErrCode {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeUnavailable
}

// IsCode check err carries the given code
func IsCode(err error, code ErrCode) bool {
	return err != nil && CodeOf(err) == code
}
