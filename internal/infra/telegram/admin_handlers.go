package telegram

import (
	"context"
	"strings"
	"time"

	"celebration_job/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	msgUnauthorized = "You are not allowed to use this bot."
	msgHelp         = "Available commands:\n\n" +
		"/run_celebrations - run the celebration job now and show the summary.\n" +
		"/help - show this message."
)

// CommandHandler holds the logic behind operator commands, independent of telebot.
type CommandHandler struct {
	runner          app.Runner
	adminTelegramID int64
	runTimeout      time.Duration
	logger          *logrus.Entry
}

func NewCommandHandler(runner app.Runner, adminTelegramID int64, runTimeout time.Duration, logger *logrus.Entry) *CommandHandler {
	return &CommandHandler{
		runner:          runner,
		adminTelegramID: adminTelegramID,
		runTimeout:      runTimeout,
		logger:          logger,
	}
}

// RunCelebrations triggers a run on behalf of senderID and returns the reply text.
func (h *CommandHandler) RunCelebrations(ctx context.Context, senderID int64) string {
	handlerLogger := h.logger.WithFields(logrus.Fields{
		"handler":   "/run_celebrations",
		"sender_id": senderID,
	})
	if senderID != h.adminTelegramID {
		handlerLogger.Warn("Unauthorized access attempt")
		return msgUnauthorized
	}
	handlerLogger.Info("Command received")

	ctx, cancel := context.WithTimeout(ctx, h.runTimeout)
	defer cancel()
	summary, err := h.runner.Run(ctx)
	if err != nil {
		handlerLogger.WithError(err).Error("Manual celebration run failed")
	}
	return FormatRunReport(summary, err)
}

// Help returns the help text for senderID.
func (h *CommandHandler) Help(senderID int64) string {
	if senderID != h.adminTelegramID {
		return msgUnauthorized
	}
	return msgHelp
}

// RegisterAdminHandlers wires the operator commands onto the bot.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, h *CommandHandler) {
	b.Handle("/run_celebrations", func(c telebot.Context) error {
		return c.Send(h.RunCelebrations(ctx, c.Sender().ID))
	})
	b.Handle("/help", func(c telebot.Context) error {
		return c.Send(h.Help(c.Sender().ID))
	})
	b.Handle("/start", func(c telebot.Context) error {
		reply := h.Help(c.Sender().ID)
		if reply == msgHelp {
			reply = strings.Replace(reply, "Available commands:", "Hi! I run the daily celebration job. Available commands:", 1)
		}
		return c.Send(reply)
	})
}
