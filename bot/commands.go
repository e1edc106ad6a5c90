package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

const maxListedReconciliations = 20

func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.isAdmin(chatId) {
		t.plainResponse(chatId, fmt.Sprintf(
			"This chat is not an operator chat\\.\nChat id: `%d`", chatId))
		return nil
	}
	t.plainResponse(chatId, "Alerts enabled for this chat\\. Send /help for commands\\.")
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.isAdmin(chatId) {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("*Commands*\n")
	for _, c := range commandsAdmin {
		sb.WriteString(fmt.Sprintf("/%s \\- %s\n", c.Command, Sanitize(c.Description)))
	}
	t.plainResponse(chatId, sb.String())
	return nil
}

// operatorContext guards admin commands and returns the chat to answer.
func (t *TgBot) operatorContext(ctx *ext.Context) (int64, bool) {
	chatId := ctx.EffectiveChat.Id
	if !t.isAdmin(chatId) {
		t.plainResponse(chatId, "Admin access required\\.")
		return chatId, false
	}
	if t.ops == nil {
		t.plainResponse(chatId, "Service not connected\\.")
		return chatId, false
	}
	return chatId, true
}

func (t *TgBot) status(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId, ok := t.operatorContext(ctx)
	if !ok {
		return nil
	}
	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	st, err := t.ops.CapacityStatus(c)
	if err != nil {
		t.reportError(chatId, "status", err)
		return nil
	}
	t.plainResponse(chatId, formatStatus(st.Users, st.MaxUsers, st.UnusedInvites, st.ToCreate))
	return nil
}

func formatStatus(users, maxUsers, unused, toCreate int) string {
	return fmt.Sprintf("*Capacity*\nUsers: `%d` of `%d`\nUnused invites: `%d`\nInvites to create: `%d`",
		users, maxUsers, unused, toCreate)
}

func (t *TgBot) invite(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId, ok := t.operatorContext(ctx)
	if !ok {
		return nil
	}
	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	inv, err := t.ops.CreateInvite(c)
	if err != nil {
		t.reportError(chatId, "invite", err)
		return nil
	}
	t.plainResponse(chatId, fmt.Sprintf("Invite code: `%s`", inv.Code))
	return nil
}

// fill accepts an optional cap: /fill 30
func (t *TgBot) fill(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId, ok := t.operatorContext(ctx)
	if !ok {
		return nil
	}
	maxUsers := 0
	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			t.plainResponse(chatId, "Usage: `/fill [maxUsers]`")
			return nil
		}
		maxUsers = n
	}

	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := t.ops.FillInvites(c, maxUsers)
	if err != nil {
		t.reportError(chatId, "fill", err)
		return nil
	}
	codes := make([]string, 0, len(res.Created))
	for _, inv := range res.Created {
		codes = append(codes, "`"+inv.Code+"`")
	}
	msg := fmt.Sprintf("Created `%d` of `%d` invites", len(res.Created), res.ToCreate)
	if len(codes) > 0 {
		msg += "\n" + strings.Join(codes, "\n")
	}
	for _, part := range splitMessage(msg, maxTelegramMessageLen) {
		t.plainResponse(chatId, part)
	}
	return nil
}

func (t *TgBot) reconciliations(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId, ok := t.operatorContext(ctx)
	if !ok {
		return nil
	}
	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	list, err := t.ops.ListReconciliations(c)
	if err != nil {
		t.reportError(chatId, "reconciliations", err)
		return nil
	}
	if len(list) == 0 {
		t.plainResponse(chatId, "No invites waiting for reconciliation\\.")
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Reconciliations* \\(%d\\)\n", len(list)))
	for i, rec := range list {
		if i == maxListedReconciliations {
			sb.WriteString(Sanitize(fmt.Sprintf("... and %d more", len(list)-i)))
			break
		}
		sb.WriteString(fmt.Sprintf("`%s` %s user `%s` %s\n",
			rec.Code,
			Sanitize(rec.CreatedAt.Format("2006-01-02 15:04")),
			rec.UserID,
			Sanitize(rec.Reason),
		))
	}
	for _, part := range splitMessage(sb.String(), maxTelegramMessageLen) {
		t.plainResponse(chatId, part)
	}
	return nil
}
