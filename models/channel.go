package models

// LiveChannel is one slot of the finite live-broadcast pool. At most one
// auction references a channel at a time; IsAllocated is true exactly when
// such a reference exists. Provider identifiers are populated while a
// broadcast is provisioned and cleared on release.
type LiveChannel struct {
	ID          int64  `json:"id"`
	StreamURL   string `json:"stream_url"`
	StreamKey   string `json:"stream_key"`
	WatchURL    string `json:"watch_url"`
	IsAllocated bool   `json:"is_allocated"`
	IsAvailable bool   `json:"is_available"`
	BroadcastID string `json:"broadcast_id,omitempty"`
	StreamID    string `json:"stream_id,omitempty"`
}

// Provisioned reports whether the channel currently holds a remote
// broadcast binding.
func (c *LiveChannel) Provisioned() bool {
	return c.BroadcastID != ""
}
