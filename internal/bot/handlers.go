package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const helpText = `I keep track of reminders for you.

Just tell me what you need:
  "remind me at 7pm to take out the trash"
  "remind me tomorrow at 9am to call the dentist"
  "remind me every friday at 17:00 to submit the timesheet"

Commands:
/list - show upcoming reminders
/cancel <number> - cancel one (numbers from /list)
/snooze [minutes] - push the last reminder back
/help - this message

Mid-setup you can answer my questions, or say "cancel" to drop it.`

func menuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "list", Description: "show upcoming reminders"},
		{Command: "cancel", Description: "cancel a reminder by number"},
		{Command: "snooze", Description: "snooze the last reminder"},
		{Command: "help", Description: "how to talk to me"},
	}
}

func (r *Router) handleMessage(ctx context.Context, msg kit.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	var reply string
	var err error
	if strings.HasPrefix(text, "/") {
		reply, err = r.handleCommand(ctx, msg.FromID, text)
	} else {
		reply, err = r.convo.HandleUtterance(ctx, msg.FromID, msg.ChatID, text, time.Now())
	}
	if err != nil {
		r.log.Warn("update handling failed",
			logx.Int64("from_id", msg.FromID),
			logx.Int64("chat_id", msg.ChatID),
			logx.Err(err))
		if reply == "" {
			reply = "Something went wrong on my end, please try again."
		}
	}
	if reply == "" {
		return
	}
	if _, err := r.adapter.SendText(ctx, chat, reply, nil); err != nil {
		r.log.Warn("reply send failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

func (r *Router) handleCommand(ctx context.Context, fromID int64, text string) (string, error) {
	fields := strings.Fields(text)
	word := strings.TrimPrefix(fields[0], "/")
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := fields[1:]

	switch strings.ToLower(word) {
	case "start", "help":
		return helpText, nil
	case "list":
		return r.convo.ListText(ctx, fromID)
	case "cancel":
		if len(args) == 0 {
			return "Which one? /cancel <number>, numbers come from /list.", nil
		}
		n, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if err != nil || n < 1 {
			return "That doesn't look like a reminder number. See /list.", nil
		}
		return r.convo.CancelByIndex(ctx, fromID, n)
	case "snooze":
		minutes := 0
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return "Snooze for how long? /snooze <minutes>.", nil
			}
			minutes = n
		}
		return r.convo.Snooze(ctx, fromID, minutes, time.Now())
	default:
		return "Unknown command. See /help.", nil
	}
}

// handleCallback accepts inline-button presses. The only routes today are
// dialog shortcuts ("convo:yes", "convo:no"), which replay the payload as if
// the user had typed it.
func (r *Router) handleCallback(ctx context.Context, cb kit.Callback) {
	payload, ok := strings.CutPrefix(strings.TrimSpace(cb.Data), "convo:")
	if !ok || payload == "" {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	reply, err := r.convo.HandleUtterance(ctx, cb.FromID, cb.ChatID, payload, time.Now())
	if err != nil {
		r.log.Warn("callback handling failed", logx.Int64("from_id", cb.FromID), logx.Err(err))
		reply = "Something went wrong on my end, please try again."
	}
	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	if reply == "" {
		return
	}
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	if _, err := r.adapter.SendText(ctx, chat, reply, nil); err != nil {
		r.log.Warn("reply send failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
	}
}
