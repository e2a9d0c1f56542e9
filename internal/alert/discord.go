package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/your-org/stop-guard-bot/internal/config"
)

// discordSession abstracts the discordgo session so tests can mock it.
type discordSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// DiscordNotifier sends alert messages to a user as direct messages.
// Messages are buffered and sent as a single combined report so a burst of
// failures does not spam the recipient.
type DiscordNotifier struct {
	session        discordSession
	userID         string
	bufferInterval time.Duration
	logger         *zap.Logger

	mu     sync.Mutex
	buffer []string
	timer  *time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewDiscordNotifier creates a notifier backed by a Discord bot session.
func NewDiscordNotifier(cfg config.DiscordConfig, logger *zap.Logger) (*DiscordNotifier, error) {
	if cfg.BotToken == "" || cfg.UserID == "" {
		return nil, errors.New("discord bot token and user ID must be configured")
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordNotifier{
		session:        session,
		userID:         cfg.UserID,
		bufferInterval: time.Duration(cfg.BufferIntervalMinutes) * time.Minute,
		logger:         logger,
	}, nil
}

// Send buffers a message for the next combined report. The first message in
// an empty buffer arms the flush timer.
func (n *DiscordNotifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return errors.New("notifier is closed")
	}

	n.buffer = append(n.buffer, message)
	if n.timer == nil {
		n.wg.Add(1)
		n.timer = time.AfterFunc(n.bufferInterval, func() {
			defer n.wg.Done()
			n.flush()
		})
	}
	return nil
}

// flush sends all buffered messages as one combined report.
func (n *DiscordNotifier) flush() {
	n.mu.Lock()
	messages := n.buffer
	n.buffer = nil
	n.timer = nil
	n.mu.Unlock()

	if len(messages) == 0 {
		return
	}

	content := fmt.Sprintf("--- **Error Report (%d messages)** ---\n%s",
		len(messages), strings.Join(messages, "\n"))

	channel, err := n.session.UserChannelCreate(n.userID)
	if err != nil {
		n.logger.Error("Failed to create discord DM channel", zap.Error(err))
		return
	}
	if _, err := n.session.ChannelMessageSend(channel.ID, content); err != nil {
		n.logger.Error("Failed to send discord message", zap.Error(err))
	}
}

// Close flushes any remaining messages and closes the session.
func (n *DiscordNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	if n.timer != nil {
		if n.timer.Stop() {
			n.wg.Done()
		}
		n.timer = nil
	}
	n.mu.Unlock()

	n.flush()
	n.wg.Wait()
	return n.session.Close()
}
