package line

import (
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

// AudioEvents returns the audio message events of a webhook delivery in
// order. Everything else is dropped.
func AudioEvents(cb *webhook.CallbackRequest) []*entity.AudioEvent {
	var events []*entity.AudioEvent
	for _, e := range cb.Events {
		msg, ok := e.(webhook.MessageEvent)
		if !ok {
			continue
		}
		audio, ok := msg.Message.(webhook.AudioMessageContent)
		if !ok {
			continue
		}

		ev := &entity.AudioEvent{
			MessageID:  audio.Id,
			LineUserID: sourceUserID(msg.Source),
			ReplyToken: msg.ReplyToken,
		}
		if msg.Timestamp > 0 {
			ev.Timestamp = time.UnixMilli(msg.Timestamp).UTC()
		}
		events = append(events, ev)
	}
	return events
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}
