package telegram

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"evpool/internal"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// TgBot implements internal.EventHandler and forwards pool events to
// subscribed operators.
type TgBot struct {
	api           *tgbotapi.BotAPI
	statusInfo    func() string
	subscriptions map[int]int64
	event         chan string
	send          chan messageContent
	mux           sync.Mutex
}

type messageContent struct {
	chatID int64
	text   string
}

func NewBot(apiKey string) (*TgBot, error) {
	tgBot := &TgBot{
		subscriptions: make(map[int]int64),
		event:         make(chan string, 100),
		send:          make(chan messageContent, 100),
	}
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api
	return tgBot, nil
}

// SetStatusInfo attaches the provider of the /status command text.
func (b *TgBot) SetStatusInfo(statusInfo func() string) {
	b.statusInfo = statusInfo
}

func (b *TgBot) Start() {
	go b.sendPump()
	go b.eventPump()
	go b.updatesPump()
}

func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		log.Printf("bot: error getting updates: %v", err)
		return
	}
	for update := range updates {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}
		switch update.Message.Command() {
		case "start":
			b.mux.Lock()
			b.subscriptions[update.Message.From.ID] = update.Message.Chat.ID
			b.mux.Unlock()
			msg := fmt.Sprintf("Hello *%v*, you are now subscribed to pool events", update.Message.From.UserName)
			b.send <- messageContent{chatID: update.Message.Chat.ID, text: msg}
		case "stop":
			b.mux.Lock()
			delete(b.subscriptions, update.Message.From.ID)
			b.mux.Unlock()
			b.send <- messageContent{chatID: update.Message.Chat.ID, text: "Your subscription has been removed"}
		case "status":
			msg := "No status information available"
			if b.statusInfo != nil {
				msg = b.statusInfo()
			}
			b.send <- messageContent{chatID: update.Message.Chat.ID, text: msg}
		}
	}
}

// eventPump fans events out to all subscribers.
func (b *TgBot) eventPump() {
	for text := range b.event {
		b.mux.Lock()
		chats := make([]int64, 0, len(b.subscriptions))
		for _, chatID := range b.subscriptions {
			chats = append(chats, chatID)
		}
		b.mux.Unlock()
		for _, chatID := range chats {
			b.sendMessage(chatID, text)
		}
	}
}

func (b *TgBot) sendPump() {
	for content := range b.send {
		b.sendMessage(content.chatID, content.text)
	}
}

func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// maybe error was while parsing, report it in plain text
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		_, err = b.api.Send(msg)
		if err != nil {
			log.Printf("bot: error sending message: %v", err)
		}
	}
}

func (b *TgBot) OnNewReservation(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: EVSE %v: `reserved`\n", event.StationId, event.EVSEId)
	msg += fmt.Sprintf("Reservation ID: %v\n", event.ReservationId)
	msg += fmt.Sprintf("Provider: %v\n", event.ProviderId)
	b.event <- msg
}

func (b *TgBot) OnReservationCancelled(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: EVSE %v: `reservation cancelled`\n", event.StationId, event.EVSEId)
	msg += fmt.Sprintf("Reservation ID: %v\n", event.ReservationId)
	if event.Info != "" {
		msg += fmt.Sprintf("Reason: %v\n", sanitize(event.Info))
	}
	b.event <- msg
}

func (b *TgBot) OnSessionStart(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: EVSE %v: `%v`\n", event.StationId, event.EVSEId, event.Status)
	msg += fmt.Sprintf("Session ID: %v START\n", event.SessionId)
	msg += fmt.Sprintf("Provider: %v\n", event.ProviderId)
	b.event <- msg
}

func (b *TgBot) OnSessionStop(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: EVSE %v: `%v`\n", event.StationId, event.EVSEId, event.Status)
	msg += fmt.Sprintf("Session ID: %v STOP\n", event.SessionId)
	if event.Info != "" {
		msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	}
	b.event <- msg
}

func (b *TgBot) OnChargeDetailRecord(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: EVSE %v: `charge record`\n", event.StationId, event.EVSEId)
	msg += fmt.Sprintf("Session ID: %v\n", event.SessionId)
	if event.Info != "" {
		msg += fmt.Sprintf("Consumed: %v\n", sanitize(event.Info))
	}
	b.event <- msg
}

func (b *TgBot) OnStatusChange(event *internal.EventMessage) {
	if event.EVSEId == "" {
		// station and pool level changes are noise for operators
		return
	}
	msg := fmt.Sprintf("*%v*: EVSE %v: `%v`\n", event.StationId, event.EVSEId, event.Status)
	if event.Info != "" {
		msg += fmt.Sprintf("%v\n", sanitize(event.Info))
	}
	b.event <- msg
}

func sanitize(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
		"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
		"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
	)
	return replacer.Replace(text)
}
