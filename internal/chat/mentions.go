package chat

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pelusa-v/dispatchdesk/internal/metrics"
	"github.com/pelusa-v/dispatchdesk/internal/models"
)

var mentionRe = regexp.MustCompile(`@(\w+)`)

// ExtractMentions returns the handles after each "@", without the "@", in
// order of first appearance. Handles differing only in case collapse to the
// first spelling seen.
func ExtractMentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	handles := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		key := strings.ToLower(match[1])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		handles = append(handles, match[1])
	}
	return handles
}

// ResolveMentions matches handles case-insensitively against the online
// identities. Each identity appears at most once and the sender never does.
func ResolveMentions(handles, online []string, sender string) []string {
	var targets []string
	picked := map[string]struct{}{}
	for _, h := range handles {
		for _, id := range online {
			if id == sender || !strings.EqualFold(h, id) {
				continue
			}
			if _, ok := picked[id]; ok {
				continue
			}
			picked[id] = struct{}{}
			targets = append(targets, id)
		}
	}
	return targets
}

// dispatchMentions 通知失败只记日志，不影响发送结果
func (m *ChatManager) dispatchMentions(ctx context.Context, sender, text string) {
	handles := ExtractMentions(text)
	if len(handles) == 0 || m.notifier == nil {
		return
	}
	online, err := m.Online(ctx)
	if err != nil {
		m.log.Warn("mention resolution skipped", zap.Error(err))
		return
	}
	for _, target := range ResolveMentions(handles, online, sender) {
		err := m.notifier.NotifyMention(ctx, target, sender, text)
		m.countNotification(models.NotifyMention, err)
		if err != nil {
			m.log.Warn("mention notification failed",
				zap.String("target", target), zap.String("from", sender), zap.Error(err))
		}
	}
}

func (m *ChatManager) notifyDirect(ctx context.Context, recipient, sender, text string) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.NotifyDirectMessage(ctx, recipient, sender, text)
	m.countNotification(models.NotifyDirectMessage, err)
	if err != nil {
		m.log.Warn("direct message notification failed",
			zap.String("recipient", recipient), zap.String("from", sender), zap.Error(err))
	}
}

func (m *ChatManager) countNotification(kind models.NotificationKind, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.Notifications.WithLabelValues(string(kind), result).Inc()
}
