package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
)

// discordSession is the part of *discordgo.Session used to post.
type discordSession interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordBotService struct {
	session   discordSession
	closer    func() error
	access    AccessChecker
	limiter   *RateLimiter
	channelID string
	botID     string
	enabled   bool
	logger    *zap.Logger
}

func NewDiscordBotService(cfg config.DiscordConfig, access AccessChecker, limiter *RateLimiter, logger *zap.Logger) (*DiscordBotService, error) {
	if cfg.BotToken == "" {
		logger.Info("Discord bot token not provided, Discord notifications disabled")
		return &DiscordBotService{enabled: false, logger: logger}, nil
	}

	if cfg.ChannelID == "" {
		logger.Info("Discord channel ID not provided, Discord notifications disabled")
		return &DiscordBotService{enabled: false, logger: logger}, nil
	}

	// Create Discord session with Bot prefix
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	user, err := session.User("@me")
	if err != nil {
		return nil, fmt.Errorf("failed to get bot user: %w", err)
	}

	botService := &DiscordBotService{
		session:   session,
		closer:    session.Close,
		access:    access,
		limiter:   limiter,
		channelID: cfg.ChannelID,
		botID:     user.ID,
		enabled:   true,
		logger:    logger,
	}

	session.AddHandler(botService.messageHandler)

	// Open websocket connection to Discord
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord connection: %w", err)
	}

	logger.Info("Discord bot connected",
		zap.String("bot_id", user.ID),
		zap.String("channel", cfg.ChannelID))

	return botService, nil
}

func (d *DiscordBotService) Name() string { return "discord" }

func (d *DiscordBotService) Enabled() bool { return d != nil && d.enabled }

func (d *DiscordBotService) Close() {
	if d.enabled && d.closer != nil {
		d.logger.Info("Closing Discord bot connection")
		if err := d.closer(); err != nil {
			d.logger.Warn("Discord close failed", zap.Error(err))
		}
	}
}

func (d *DiscordBotService) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore messages from the bot itself
	if m.Author == nil || m.Author.ID == d.botID {
		return
	}

	// Only respond in the configured channel
	if m.ChannelID != d.channelID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply, ok := d.handleCommand(ctx, m.Author.ID, m.Content)
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		d.logger.Warn("Failed to reply to Discord command", zap.Error(err))
	}
}

// handleCommand answers "!cynix <cmd>" messages from authorID. ok is false
// for anything else.
func (d *DiscordBotService) handleCommand(ctx context.Context, authorID, content string) (reply string, ok bool) {
	args := strings.Fields(content)
	if len(args) < 2 || args[0] != "!cynix" {
		return "", false
	}

	switch args[1] {
	case "ping":
		return "🏓 Pong! Cynix bot is online!", true
	case "help":
		return "**Cynix Bot Commands:**\n" +
			"`!cynix ping` - Check if bot is online\n" +
			"`!cynix help` - Show this help message\n" +
			"`!cynix verify <wallet>` - Check the access tiers of a wallet", true
	case "verify":
		if len(args) < 3 {
			return "Usage: `!cynix verify <wallet_address>`", true
		}
		if !d.limiter.AdmitCommand(ctx, "discord:"+authorID, time.Now(), d.logger) {
			return "⏳ Too many verification attempts. Please wait a minute and try again.", true
		}
		return d.verify(ctx, args[2]), true
	default:
		return fmt.Sprintf("Unknown command: `%s`. Try `!cynix help`", args[1]), true
	}
}

func (d *DiscordBotService) verify(ctx context.Context, wallet string) string {
	if d.access == nil {
		return "Wallet verification is not available."
	}

	info, err := d.access.CheckAccess(ctx, wallet)
	if err != nil {
		return "Invalid wallet address."
	}
	if info.Degraded() {
		return "Error verifying wallet. Please try again later."
	}

	var unlocked []string
	for _, tier := range models.AllTiers {
		if info.Has(tier) {
			unlocked = append(unlocked, string(tier))
		}
	}
	if len(unlocked) == 0 {
		return fmt.Sprintf("❌ No tiers unlocked. You need %d CYNIX for alpha access.\nCurrent balance: %d",
			AlphaThreshold, info.TotalTokens)
	}
	return fmt.Sprintf("✅ Balance: %d CYNIX (%d staked)\nUnlocked: %s",
		info.TotalTokens, info.StakedAmount, strings.Join(unlocked, ", "))
}

// SendAlert posts the alert as an embed to the configured channel.
func (d *DiscordBotService) SendAlert(ctx context.Context, alert *models.Alert) []models.DeliveryResult {
	result := models.DeliveryResult{Channel: d.Name()}
	if !d.enabled {
		result.Error = "Discord bot not enabled"
		return []models.DeliveryResult{result}
	}

	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, d.createAlertEmbed(alert), discordgo.WithContext(ctx)); err != nil {
		d.logger.Warn("Failed to send Discord alert", zap.String("alert_id", alert.ID), zap.Error(err))
		result.Error = err.Error()
		return []models.DeliveryResult{result}
	}

	d.logger.Info("Alert sent to Discord", zap.String("alert_id", alert.ID))
	result.Success = true
	return []models.DeliveryResult{result}
}

func (d *DiscordBotService) createAlertEmbed(alert *models.Alert) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Type",
			Value:  formatAlertKind(alert.Kind),
			Inline: true,
		},
	}

	if alert.Confidence > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Confidence",
			Value:  fmt.Sprintf("%.1f%%", alert.Confidence*100),
			Inline: true,
		})
	}
	if len(alert.Insights) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Key Insights",
			Value: formatInsights(alert.Insights),
		})
	}

	return &discordgo.MessageEmbed{
		Title:       alertEmoji(alert.Kind) + " " + alert.Title,
		Description: alert.Message,
		Color:       d.getColorForKind(alert.Kind),
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Alert ID: %s", alert.ID),
		},
		Timestamp: alert.CreatedAt.Format(time.RFC3339),
	}
}

func (d *DiscordBotService) getColorForKind(kind models.AlertKind) int {
	switch kind {
	case models.AlertKindAlpha:
		return 15105570 // Orange
	case models.AlertKindMeme:
		return 10181046 // Purple
	case models.AlertKindPrice:
		return 15844367 // Gold
	default:
		return 3447003 // Blue
	}
}
