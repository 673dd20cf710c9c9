// Package domain holds the view-event types shared by the aggregator and its collaborators.
package domain

import "time"

// DateLayout is the calendar-date format used for dedup and the remote uniqueness key.
const DateLayout = "2006-01-02"

// FormatDate returns t's calendar date in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ViewEvent is a pending, not yet flushed, view of a content item.
// Within the pending queue no two events share (ItemID, Date).
type ViewEvent struct {
	ItemID string `json:"item_id"`
	Date   string `json:"date"`
}

// Key returns the dedup key of the event.
func (e ViewEvent) Key() string {
	return e.ItemID + "|" + e.Date
}

// ViewRecord is the row written to the remote store. The remote enforces
// uniqueness on (ItemID, IPAddress, UserAgent, Date).
type ViewRecord struct {
	ItemID    string    `json:"statement_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	ViewedAt  time.Time `json:"viewed_at"`
	Date      string    `json:"view_date"`
}
