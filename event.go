// event.go: Runtime events delivered to monitors
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"time"

	timecache "github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// Event is one unit of input dispatched to every eligible monitor.
type Event struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel,omitempty"`
	AuthorID   string    `json:"author_id,omitempty"`
	AuthorBot  bool      `json:"author_bot,omitempty"`
	Content    string    `json:"content,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewEvent creates an event with a fresh ID and receive time.
func NewEvent(authorID, content string) *Event {
	e := &Event{AuthorID: authorID, Content: content}
	e.stamp()
	return e
}

// stamp fills in ID and ReceivedAt when the caller left them empty.
func (e *Event) stamp() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = timecache.CachedTime()
	}
}
