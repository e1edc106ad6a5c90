package bot

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

var commandsAnonymous = []tgbotapi.BotCommand{
	{Command: "start", Description: "Show this chat's id"},
}

var commandsAdmin = []tgbotapi.BotCommand{
	{Command: "status", Description: "Users, capacity and unused invites"},
	{Command: "invite", Description: "Generate one invite code"},
	{Command: "fill", Description: "Top up invites to remaining capacity"},
	{Command: "reconciliations", Description: "Invites that need manual repair"},
	{Command: "help", Description: "Show available commands"},
}

// setCommandMenus sets the default menu and the operator menu for admin chats.
func (t *TgBot) setCommandMenus() {
	_, err := t.api.SetMyCommands(commandsAnonymous, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", "error", err)
	}
	for _, chatId := range t.adminIds {
		_, err = t.api.SetMyCommands(commandsAdmin, &tgbotapi.SetMyCommandsOpts{
			Scope: tgbotapi.BotCommandScopeChat{ChatId: chatId},
		})
		if err != nil {
			t.log.Warn("setting admin commands", "chat_id", chatId, "error", err)
		}
	}
}
