package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

// maxTextLength is the Messaging API limit for one text message.
const maxTextLength = 5000

type Config struct {
	ChannelAccessToken string
	ChannelSecret      string
	// APIURL and DataAPIURL override the SDK endpoints when set.
	APIURL     string
	DataAPIURL string
	Timeout    time.Duration
}

type Client struct {
	secret string
	api    *messaging_api.MessagingApiAPI
	blob   *messaging_api.MessagingApiBlobAPI
	log    *slog.Logger
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	apiOpts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(httpClient)}
	if cfg.APIURL != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(cfg.APIURL))
	}
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging api client: %w", err)
	}

	blobOpts := []messaging_api.MessagingApiBlobAPIOption{messaging_api.WithBlobHTTPClient(httpClient)}
	if cfg.DataAPIURL != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(cfg.DataAPIURL))
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging blob client: %w", err)
	}

	log.Debug("creating line client",
		slog.String("api_url", cfg.APIURL),
		slog.String("data_api_url", cfg.DataAPIURL),
		slog.Bool("access_token_set", cfg.ChannelAccessToken != ""),
		slog.Bool("channel_secret_set", cfg.ChannelSecret != ""))

	return &Client{
		secret: cfg.ChannelSecret,
		api:    api,
		blob:   blob,
		log:    log,
	}, nil
}

// ParseWebhook checks the request signature and returns its audio events in
// delivery order.
func (c *Client) ParseWebhook(r *http.Request) ([]*entity.AudioEvent, error) {
	cb, err := webhook.ParseRequest(c.secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, entity.ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %w", entity.ErrInvalidInput, err)
	}

	events := AudioEvents(cb)
	c.log.Debug("webhook parsed",
		slog.Int("events", len(cb.Events)),
		slog.Int("audio_events", len(events)))

	return events, nil
}

// Content streams the binary payload of a message. The caller closes it.
func (c *Client) Content(ctx context.Context, messageID string) (io.ReadCloser, error) {
	resp, err := c.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to fetch content of message %s: %w", messageID, err)
	}

	return resp.Body, nil
}

// Reply sends one text message addressed to replyToken.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	if r := []rune(text); len(r) > maxTextLength {
		text = string(r[:maxTextLength])
	}

	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}

	c.log.Debug("reply sent", slog.Int("length", len(text)))
	return nil
}

// Profile returns the display name of a user who talks to the bot.
func (c *Client) Profile(ctx context.Context, lineUserID string) (string, error) {
	p, err := c.api.WithContext(ctx).GetProfile(lineUserID)
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}

	return p.DisplayName, nil
}
