package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTarget is returned when a destination identifier can't be parsed
// into a ChatTarget.
var ErrInvalidTarget = errors.New("invalid delivery target")

// ChatTarget addresses a chat, optionally a forum topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
}

func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers text to a destination. It is the only transport primitive
// the broadcaster depends on.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// ParseTarget parses a stored destination identifier.
//
// Accepted forms are "<chat_id>" and "<chat_id>:<thread_id>". Chat ids are
// signed (group chats are negative) and must be non-zero.
func ParseTarget(raw string) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("%w: empty identifier", ErrInvalidTarget)
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return ChatTarget{}, fmt.Errorf("%w: %q is not a chat id", ErrInvalidTarget, raw)
	}
	if chatID == 0 {
		return ChatTarget{}, fmt.Errorf("%w: chat id must be non-zero", ErrInvalidTarget)
	}
	t := ChatTarget{ChatID: chatID}
	if hasThread {
		tid, err := strconv.Atoi(threadPart)
		if err != nil || tid <= 0 {
			return ChatTarget{}, fmt.Errorf("%w: %q has an invalid thread id", ErrInvalidTarget, raw)
		}
		t.ThreadID = tid
	}
	return t, nil
}
