package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	model "lab-scheduler.com/lab-scheduler/internal/models"
)

// SlackDispatcher posts notifications to a single lab channel, mentioning the
// recipients that have a Slack identity.
type SlackDispatcher struct {
	client  *slack.Client
	channel string
}

func NewSlackDispatcher(token, channel string) *SlackDispatcher {
	return &SlackDispatcher{
		client:  slack.New(token),
		channel: channel,
	}
}

func (d *SlackDispatcher) Send(ctx context.Context, recipients []model.Person, templateKey string, payload map[string]interface{}) error {
	mentions := make([]string, 0, len(recipients))
	for _, p := range recipients {
		if p.SlackUserID != "" {
			mentions = append(mentions, fmt.Sprintf("<@%s>", p.SlackUserID))
		} else {
			mentions = append(mentions, p.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", templateKey, strings.Join(mentions, " "))
	for k, v := range payload {
		fmt.Fprintf(&b, "\n%s: %v", k, v)
	}

	_, _, err := d.client.PostMessageContext(ctx, d.channel, slack.MsgOptionText(b.String(), false))
	return err
}
