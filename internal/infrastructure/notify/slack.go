package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackChannel はSlackのチャンネルへ投稿する
type SlackChannel struct {
	client    *slack.Client
	channelID string
}

// NewSlackChannel は新しいSlackChannelを作成。apiURLが空ならSlack本番APIを使う。
func NewSlackChannel(token, channelID, apiURL string) *SlackChannel {
	opts := []slack.Option{}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackChannel{
		client:    slack.New(token, opts...),
		channelID: channelID,
	}
}

// Name はチャネル名を返す
func (c *SlackChannel) Name() string {
	return "slack"
}

// Send はテキストを投稿する
func (c *SlackChannel) Send(ctx context.Context, text string) error {
	if _, _, err := c.client.PostMessageContext(ctx, c.channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	return nil
}
