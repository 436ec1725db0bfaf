package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
)

const (
	telegramWelcome = `Welcome to Cynix Alpha Bot! 🚀

To access premium features:
1. Hold required amount of CYNIX tokens
2. Use /verify <wallet_address> to verify your holdings
3. Get early access to alpha signals!`

	telegramVerifyUsage = "Please provide a valid wallet address:\n/verify <wallet_address>"
	telegramVerifyError = "Error verifying wallet. Please check the address and try again."
	telegramRateLimited = "Too many verification attempts. Please wait a minute and try again."

	inviteLinkTTL = time.Hour
)

// AccessChecker resolves the access tiers of a wallet.
type AccessChecker interface {
	CheckAccess(ctx context.Context, wallet string) (*models.WalletAccessInfo, error)
}

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramBotService struct {
	api              telegramAPI
	access           AccessChecker
	limiter          *RateLimiter
	alphaChannelID   int64
	regularChannelID int64
	premiumDelay     time.Duration
	enabled          bool
	now              func() time.Time
	logger           *zap.Logger

	pending sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

func NewTelegramBotService(cfg *config.Config, access AccessChecker, limiter *RateLimiter, logger *zap.Logger) (*TelegramBotService, error) {
	if cfg.Telegram.BotToken == "" {
		logger.Info("Telegram bot token not provided, Telegram notifications disabled")
		return &TelegramBotService{enabled: false, logger: logger, stop: make(chan struct{})}, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	bot.Debug = false
	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	return newTelegramBot(bot, access, limiter, cfg.Telegram, logger), nil
}

func newTelegramBot(api telegramAPI, access AccessChecker, limiter *RateLimiter, cfg config.TelegramConfig, logger *zap.Logger) *TelegramBotService {
	return &TelegramBotService{
		api:              api,
		access:           access,
		limiter:          limiter,
		alphaChannelID:   cfg.AlphaChannelID,
		regularChannelID: cfg.RegularChannelID,
		premiumDelay:     time.Duration(cfg.PremiumDelay) * time.Second,
		enabled:          true,
		now:              time.Now,
		logger:           logger,
		stop:             make(chan struct{}),
	}
}

func (t *TelegramBotService) Name() string { return "telegram" }

func (t *TelegramBotService) Enabled() bool { return t != nil && t.enabled }

// Start handles bot commands until ctx is cancelled.
func (t *TelegramBotService) Start(ctx context.Context) {
	if !t.enabled {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
}

// Close drops alerts still waiting for the premium delay.
func (t *TelegramBotService) Close() {
	t.once.Do(func() { close(t.stop) })
	t.pending.Wait()
}

func (t *TelegramBotService) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	var reply string
	switch msg.Command() {
	case "start":
		reply = telegramWelcome
	case "verify":
		reply = t.verify(ctx, msg.Chat.ID, strings.Fields(msg.CommandArguments()))
	default:
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ReplyToMessageID = msg.MessageID
	if _, err := t.api.Send(out); err != nil {
		t.logger.Warn("Failed to reply to Telegram command",
			zap.String("command", msg.Command()),
			zap.Error(err))
	}
}

// verify answers /verify with an alpha channel invite or the shortfall.
// Attempts are rate limited per chat before any RPC lookup.
func (t *TelegramBotService) verify(ctx context.Context, chatID int64, args []string) string {
	if len(args) == 0 {
		return telegramVerifyUsage
	}
	if !t.limiter.AdmitCommand(ctx, "telegram:"+strconv.FormatInt(chatID, 10), t.now(), t.logger) {
		return telegramRateLimited
	}

	info, err := t.access.CheckAccess(ctx, args[0])
	if err != nil {
		if models.HasCode(err, models.ErrInvalidAddress) {
			return telegramVerifyUsage
		}
		return telegramVerifyError
	}
	if info.Degraded() {
		return telegramVerifyError
	}

	if !info.Has(models.TierAlpha) {
		return fmt.Sprintf("❌ Insufficient CYNIX tokens. You need %d tokens for premium access.\nCurrent balance: %d",
			AlphaThreshold, info.TotalTokens)
	}

	link, err := t.createInvite()
	if err != nil {
		t.logger.Error("Failed to create alpha channel invite", zap.Error(err))
		return telegramVerifyError
	}
	return "✅ Verification successful! Here's your premium channel invite:\n" + link
}

// createInvite makes a single-use alpha channel link valid for one hour.
func (t *TelegramBotService) createInvite() (string, error) {
	resp, err := t.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: t.alphaChannelID},
		ExpireDate:  int(t.now().Add(inviteLinkTTL).Unix()),
		MemberLimit: 1,
	})
	if err != nil {
		return "", err
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("empty invite link")
	}
	return link.InviteLink, nil
}

// SendAlert posts alpha alerts to the premium channel first and to the
// regular channel after the premium delay. Other alerts go to the regular
// channel only.
func (t *TelegramBotService) SendAlert(ctx context.Context, alert *models.Alert) []models.DeliveryResult {
	if !t.enabled {
		return []models.DeliveryResult{{Channel: t.Name(), Error: "Telegram bot not enabled"}}
	}

	if alert.Kind != models.AlertKindAlpha {
		return []models.DeliveryResult{t.deliver("telegram:regular", t.regularChannelID, FormatAlert(alert, false))}
	}

	results := []models.DeliveryResult{
		t.deliver("telegram:premium", t.alphaChannelID, FormatAlert(alert, true)),
	}

	scheduled := t.now().Add(t.premiumDelay).UTC()
	results = append(results, models.DeliveryResult{
		Channel:     "telegram:regular",
		Success:     true,
		ScheduledAt: &scheduled,
	})
	t.sendLater(t.regularChannelID, FormatAlert(alert, false), t.premiumDelay)
	return results
}

func (t *TelegramBotService) deliver(channel string, chatID int64, text string) models.DeliveryResult {
	if err := t.sendText(chatID, text); err != nil {
		t.logger.Warn("Telegram delivery failed", zap.String("channel", channel), zap.Error(err))
		return models.DeliveryResult{Channel: channel, Error: err.Error()}
	}
	return models.DeliveryResult{Channel: channel, Success: true}
}

func (t *TelegramBotService) sendLater(chatID int64, text string, delay time.Duration) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			if err := t.sendText(chatID, text); err != nil {
				t.logger.Warn("Delayed Telegram delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
			}
		case <-t.stop:
			t.logger.Info("Dropping delayed Telegram alert on shutdown", zap.Int64("chat_id", chatID))
		}
	}()
}

func (t *TelegramBotService) sendText(chatID int64, text string) error {
	if chatID == 0 {
		return fmt.Errorf("telegram channel not configured")
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := t.api.Send(msg)
	return err
}
