package models

import "time"

// RoomSummary is a live room as listed by the inspection API.
type RoomSummary struct {
	Code      string    `json:"code"`
	PeerCount int       `json:"peerCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// PeerDetail is a read-only view of one connected peer (no transport fields).
type PeerDetail struct {
	PeerID string `json:"peer_id"`
	MediaState
	ConnectedAt   time.Time `json:"connectedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	LinkedPeers   []string  `json:"linkedPeers"`
}

// RoomDetail is a point-in-time snapshot of a live room.
type RoomDetail struct {
	Code      string       `json:"code"`
	CreatedAt time.Time    `json:"createdAt"`
	Peers     []PeerDetail `json:"peers"`
}
