package transform

import (
	"context"
	"strconv"
	"strings"
	"time"

	gateway "github.com/stayware/message-etl/internal/gateways"
	"github.com/stayware/message-etl/internal/model"
	"github.com/stayware/message-etl/pkg/logger"
)

// hostawayTimeLayout is the timestamp format used by every Hostaway date
// field.
const hostawayTimeLayout = "2006-01-02 15:04:05"

// Gateway is the slice of the Hostaway client the transformer needs for
// enrichment lookups.
type Gateway interface {
	GetListing(ctx context.Context, id int64) (*gateway.Listing, error)
	GetReservation(ctx context.Context, id int64) (*gateway.ReservationDetails, error)
	ConversationMessages(ctx context.Context, id int64) ([]gateway.ConversationMessage, error)
}

// Transformer turns raw upstream conversation records into canonical
// messages, filling gaps with point lookups where the listing payload is
// incomplete.
type Transformer struct {
	gw  Gateway
	now func() time.Time
}

func New(gw Gateway) *Transformer {
	return &Transformer{
		gw:  gw,
		now: time.Now,
	}
}

// Transform builds the canonical message for one raw record. Enrichment
// lookups degrade to partial data with a warning; the only hard failure is
// a record that cannot satisfy the canonical shape.
func (t *Transformer) Transform(ctx context.Context, raw *gateway.RawConversation) (*model.Message, error) {
	msg := &model.Message{
		MessageID: strconv.FormatInt(raw.ID, 10),
		Content:   t.content(ctx, raw),
		Property:  t.property(ctx, raw),
	}

	msg.Guest = model.Guest{
		Name:        firstNonEmpty(raw.GuestName, raw.RecipientName),
		Email:       coalesce(raw.GuestEmail, raw.RecipientEmail),
		Phone:       coalesce(raw.GuestPhoneNumber, raw.Phone),
		Nationality: raw.GuestNationality,
	}

	if raw.ReservationID != nil {
		res := &model.Reservation{ID: strconv.FormatInt(*raw.ReservationID, 10)}
		details, err := t.gw.GetReservation(ctx, *raw.ReservationID)
		if err != nil {
			logger.Warn("reservation lookup failed, storing id only", "reservation_id", *raw.ReservationID, "error", err)
		} else if details != nil {
			res.Price = details.TotalPrice
			// reservation details are authoritative for guest identity
			if details.GuestName != "" {
				msg.Guest.Name = details.GuestName
			}
			if details.GuestEmail != nil {
				msg.Guest.Email = details.GuestEmail
			}
			if details.Phone != nil {
				msg.Guest.Phone = details.Phone
			}
			if details.GuestNationality != nil {
				msg.Guest.Nationality = details.GuestNationality
			}
		}
		msg.Reservation = res
	}

	msg.Direction = direction(raw)
	msg.MessageType = messageType(raw)
	msg.Timestamp = t.timestamp(raw)

	now := t.now()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// content prefers the inline body and falls back to the first entry of the
// conversation thread.
func (t *Transformer) content(ctx context.Context, raw *gateway.RawConversation) string {
	if raw.Content != nil && *raw.Content != "" {
		return *raw.Content
	}
	msgs, err := t.gw.ConversationMessages(ctx, raw.ID)
	if err != nil {
		logger.Warn("conversation thread lookup failed, storing empty content", "conversation_id", raw.ID, "error", err)
		return ""
	}
	if len(msgs) == 0 {
		logger.Warn("conversation has no messages, storing empty content", "conversation_id", raw.ID)
		return ""
	}
	return msgs[0].Body
}

func (t *Transformer) property(ctx context.Context, raw *gateway.RawConversation) model.Property {
	p := model.Property{Name: raw.ListingName}
	if raw.ListingMapID == nil {
		return p
	}
	p.ID = strconv.FormatInt(*raw.ListingMapID, 10)
	if p.Name != "" {
		return p
	}
	listing, err := t.gw.GetListing(ctx, *raw.ListingMapID)
	if err != nil {
		logger.Warn("listing lookup failed, storing empty property name", "listing_id", *raw.ListingMapID, "error", err)
		return p
	}
	if listing != nil {
		p.Name = listing.Name
	}
	return p
}

// direction honors the explicit isIncoming flag first; without it, guest
// typed message types count as incoming and everything else as outgoing.
func direction(raw *gateway.RawConversation) model.Direction {
	if raw.IsIncoming != nil {
		if *raw.IsIncoming {
			return model.DirectionIncoming
		}
		return model.DirectionOutgoing
	}
	if strings.HasPrefix(raw.Type, "guest") {
		return model.DirectionIncoming
	}
	return model.DirectionOutgoing
}

func messageType(raw *gateway.RawConversation) model.MessageType {
	if strings.HasPrefix(raw.Type, "automated") {
		return model.MessageTypeAutomated
	}
	return model.MessageTypeManual
}

// timestamp tries the upstream date fields in their order of reliability
// and falls back to the current time when none parses.
func (t *Transformer) timestamp(raw *gateway.RawConversation) time.Time {
	for _, candidate := range []*string{raw.InsertedOn, raw.UpdatedOn, raw.MessageSentOn, raw.MessageReceivedOn} {
		if candidate == nil || *candidate == "" {
			continue
		}
		ts, err := time.Parse(hostawayTimeLayout, *candidate)
		if err != nil {
			continue
		}
		return ts
	}
	logger.Warn("record carries no parseable timestamp, using current time", "conversation_id", raw.ID)
	return t.now()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func coalesce(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}
