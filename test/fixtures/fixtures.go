package fixtures

import (
	"time"

	gateway "github.com/stayware/message-etl/internal/gateways"
	"github.com/stayware/message-etl/internal/model"
)

func NewTestMessage(messageID, propertyID, content string, ts time.Time) *model.Message {
	return &model.Message{
		MessageID: messageID,
		Property: model.Property{
			ID:   propertyID,
			Name: "Seaside Apartment",
		},
		Guest: model.Guest{
			Name: "Ada Guest",
		},
		Content:     content,
		Timestamp:   ts,
		Direction:   model.DirectionIncoming,
		MessageType: model.MessageTypeManual,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func NewTestRawConversation(id int64) *gateway.RawConversation {
	listingID := int64(77)
	content := "Hi, what time is check-in?"
	inserted := "2026-08-01 10:30:00"
	return &gateway.RawConversation{
		ID:           id,
		ListingMapID: &listingID,
		ListingName:  "Seaside Apartment",
		GuestName:    "Ada Guest",
		Type:         "guest",
		Content:      &content,
		InsertedOn:   &inserted,
	}
}

func Ptr[T any](v T) *T {
	return &v
}
