package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramChannel はTelegramのチャットへ送信する
type TelegramChannel struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegramChannel は新しいTelegramChannelを作成。apiServerが空ならTelegram本番APIを使う。
func NewTelegramChannel(token string, chatID int64, apiServer string) (*TelegramChannel, error) {
	var opts []telego.BotOption
	if apiServer != "" {
		opts = append(opts, telego.WithAPIServer(apiServer))
	}
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramChannel{bot: bot, chatID: chatID}, nil
}

// Name はチャネル名を返す
func (c *TelegramChannel) Name() string {
	return "telegram"
}

// Send はテキストを送信する
func (c *TelegramChannel) Send(ctx context.Context, text string) error {
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(c.chatID), text)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
