package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// DiscordChannel はDiscordのチャンネルへ投稿する
type DiscordChannel struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordChannel は新しいDiscordChannelを作成。httpClientがnilならdiscordgoのデフォルトを使う。
func NewDiscordChannel(token, channelID string, httpClient *http.Client) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if httpClient != nil {
		session.Client = httpClient
	}
	return &DiscordChannel{session: session, channelID: channelID}, nil
}

// Name はチャネル名を返す
func (c *DiscordChannel) Name() string {
	return "discord"
}

// Send はテキストを投稿する
func (c *DiscordChannel) Send(ctx context.Context, text string) error {
	if _, err := c.session.ChannelMessageSend(c.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	return nil
}
