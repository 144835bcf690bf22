package adapter

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "linkguard/internal/transport"
)

var retryAfterRe = regexp.MustCompile(`retry after (\d+)`)

// wrapErr classifies a Bot API error into a *kit.Error.
func wrapErr(op, chat string, err error) error {
	if err == nil {
		return nil
	}
	kind, after := classify(err)
	return &kit.Error{Kind: kind, Op: op, Chat: chat, RetryAfter: after, Err: err}
}

func classify(err error) (kit.ErrorKind, time.Duration) {
	if errors.Is(err, context.DeadlineExceeded) {
		return kit.KindTransient, 0
	}
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "too many requests") || strings.Contains(msg, "retry after") {
		var after time.Duration
		if m := retryAfterRe.FindStringSubmatch(msg); len(m) == 2 {
			if n, convErr := strconv.Atoi(m[1]); convErr == nil {
				after = time.Duration(n) * time.Second
			}
		}
		return kit.KindRateLimited, after
	}

	switch {
	case containsAny(msg,
		"chat not found",
		"message to edit not found",
		"message to delete not found",
		"message_id_invalid",
		"user not found"):
		return kit.KindNotFound, 0
	case containsAny(msg,
		"not enough rights",
		"have no rights",
		"need administrator rights",
		"chat_admin_required",
		"bot is not a member",
		"bot was kicked",
		"message can't be deleted",
		"message can't be edited",
		"forbidden"):
		return kit.KindPermissionDenied, 0
	}

	var te *tele.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == 403:
			return kit.KindPermissionDenied, 0
		case te.Code >= 500:
			return kit.KindTransient, 0
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return kit.KindTransient, 0
	}
	if containsAny(msg, "internal server error", "bad gateway", "gateway timeout", "connection reset", "timeout", "eof") {
		return kit.KindTransient, 0
	}
	return kit.KindUnknown, 0
}

// notModified reports Telegram's refusal to apply an edit with identical content.
func notModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
