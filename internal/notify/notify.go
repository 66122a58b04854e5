// Package notify доставляет сообщения покупателям и операторам.
package notify

import (
	"context"
	"log/slog"
)

// Виды действий, которые оператор может выполнить по сообщению
const (
	ActionConfirm = "confirm"
	ActionReject  = "reject"
	ActionDeliver = "deliver"
)

// Action — кнопка с параметром, например confirm:42
type Action struct {
	Kind    string `json:"kind"`
	OrderID int64  `json:"order_id"`
}

type Payload struct {
	Actions []Action `json:"actions,omitempty"`
}

// Notifier отправляет одно сообщение одному получателю.
type Notifier interface {
	Notify(ctx context.Context, recipientID int64, text string, payload *Payload) error
}

// LogNotifier только пишет сообщения в лог.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, recipientID int64, text string, payload *Payload) error {
	attrs := []any{
		slog.Int64("recipient_id", recipientID),
		slog.String("text", text),
	}
	if payload != nil {
		for _, a := range payload.Actions {
			attrs = append(attrs, slog.Int64(a.Kind, a.OrderID))
		}
	}
	n.log.Info("notification", attrs...)
	return nil
}

// Messenger рассылает сообщения покупателю или всем операторам.
// Ошибки доставки логируются и не возвращаются.
type Messenger struct {
	log       *slog.Logger
	notifier  Notifier
	operators []int64
	support   string
}

func NewMessenger(log *slog.Logger, notifier Notifier, operatorIDs []int64, supportContact string) *Messenger {
	return &Messenger{log: log, notifier: notifier, operators: operatorIDs, support: supportContact}
}

// SupportContact возвращает контакт поддержки для текстов покупателю
func (m *Messenger) SupportContact() string {
	return m.support
}

func (m *Messenger) ToBuyer(ctx context.Context, buyerID int64, text string, payload *Payload) {
	m.send(ctx, buyerID, text, payload)
}

func (m *Messenger) ToOperators(ctx context.Context, text string, payload *Payload) {
	for _, id := range m.operators {
		m.send(ctx, id, text, payload)
	}
}

func (m *Messenger) send(ctx context.Context, recipientID int64, text string, payload *Payload) {
	if err := m.notifier.Notify(ctx, recipientID, text, payload); err != nil {
		m.log.Warn("failed to deliver notification",
			slog.String("op", "notify.Messenger.send"),
			slog.Int64("recipient_id", recipientID),
			slog.String("error", err.Error()),
		)
	}
}
