package repository

import (
	"time"

	"github.com/stayware/message-etl/internal/model"
)

// MessageEntity is the gorm row shape of one canonical message. The
// nested canonical structs are flattened into columns so the composite
// indexes the query patterns need can be expressed directly.
type MessageEntity struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	MessageID string `gorm:"column:message_id;uniqueIndex:idx_messages_message_id;not null"`

	PropertyID   string `gorm:"column:property_id;index:idx_property_timestamp,priority:1"`
	PropertyName string `gorm:"column:property_name"`

	GuestName        string  `gorm:"column:guest_name"`
	GuestEmail       *string `gorm:"column:guest_email"`
	GuestPhone       *string `gorm:"column:guest_phone"`
	GuestNationality *string `gorm:"column:guest_nationality;index:idx_nationality_timestamp,priority:1"`

	Content   string    `gorm:"column:content"`
	Timestamp time.Time `gorm:"column:timestamp;index:idx_property_timestamp,priority:2;index:idx_nationality_timestamp,priority:2"`
	Direction string    `gorm:"column:direction"`

	ReservationID    *string  `gorm:"column:reservation_id"`
	ReservationPrice *float64 `gorm:"column:reservation_price"`

	MessageType string `gorm:"column:message_type"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	e := &MessageEntity{
		MessageID:        m.MessageID,
		PropertyID:       m.Property.ID,
		PropertyName:     m.Property.Name,
		GuestName:        m.Guest.Name,
		GuestEmail:       m.Guest.Email,
		GuestPhone:       m.Guest.Phone,
		GuestNationality: m.Guest.Nationality,
		Content:          m.Content,
		Timestamp:        m.Timestamp,
		Direction:        string(m.Direction),
		MessageType:      string(m.MessageType),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.Reservation != nil {
		id := m.Reservation.ID
		e.ReservationID = &id
		e.ReservationPrice = m.Reservation.Price
	}
	return e
}

func toMessageModel(e *MessageEntity) *model.Message {
	m := &model.Message{
		MessageID: e.MessageID,
		Property: model.Property{
			ID:   e.PropertyID,
			Name: e.PropertyName,
		},
		Guest: model.Guest{
			Name:        e.GuestName,
			Email:       e.GuestEmail,
			Phone:       e.GuestPhone,
			Nationality: e.GuestNationality,
		},
		Content:     e.Content,
		Timestamp:   e.Timestamp,
		Direction:   model.Direction(e.Direction),
		MessageType: model.MessageType(e.MessageType),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.ReservationID != nil {
		m.Reservation = &model.Reservation{
			ID:    *e.ReservationID,
			Price: e.ReservationPrice,
		}
	}
	return m
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	out := make([]*model.Message, 0, len(entities))
	for _, e := range entities {
		out = append(out, toMessageModel(e))
	}
	return out
}
