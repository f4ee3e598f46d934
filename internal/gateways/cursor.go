package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/stayware/message-etl/pkg/logger"
	"github.com/valyala/fasthttp"
)

// ConversationCursor walks the /conversations listing lazily, fetching one
// page at a time. A page shorter than the page size ends the stream.
type ConversationCursor struct {
	client *Client
	since  *time.Time
	limit  int

	buffer []RawConversation
	pos    int
	offset int
	done   bool
}

// Next returns the next raw record, fetching the following page when the
// buffered one is exhausted. It returns (nil, nil) at end of stream.
func (c *ConversationCursor) Next(ctx context.Context) (*RawConversation, error) {
	if c.pos >= len(c.buffer) {
		if c.done {
			return nil, nil
		}
		if err := c.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(c.buffer) == 0 {
			return nil, nil
		}
	}
	raw := &c.buffer[c.pos]
	c.pos++
	return raw, nil
}

// LastOffset reports the upstream offset of the last fetched page, for
// failure diagnostics.
func (c *ConversationCursor) LastOffset() int {
	return c.offset
}

func (c *ConversationCursor) fetchPage(ctx context.Context) error {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("offset", strconv.Itoa(c.offset))
	if c.since != nil {
		params.Set("arrivalStartDate", c.since.Format("2006-01-02"))
	}

	env, err := c.client.Request(ctx, fasthttp.MethodGet, "/conversations", params, nil)
	if err != nil {
		return err
	}

	var page []RawConversation
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &page); err != nil {
			return fmt.Errorf("failed to unmarshal conversations page: %w", err)
		}
	}

	logger.Debug("fetched conversations page", "offset", c.offset, "count", len(page))

	c.buffer = page
	c.pos = 0
	c.offset += len(page)
	if len(page) < c.limit {
		c.done = true
	}
	return nil
}
