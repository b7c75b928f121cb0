package models

// SignalType is the `type` discriminator carried by every frame.
type SignalType string

const (
	// Relayed verbatim to the peer named in `target`.
	SignalTypeOffer        SignalType = "offer"
	SignalTypeAnswer       SignalType = "answer"
	SignalTypeICECandidate SignalType = "ice_candidate"

	SignalTypeMediaStatus     SignalType = "media_status"
	SignalTypePing            SignalType = "ping"
	SignalTypePong            SignalType = "pong"
	SignalTypeRTCConnected    SignalType = "rtc_connected"
	SignalTypeRTCDisconnected SignalType = "rtc_disconnected"

	// Server-initiated events.
	SignalTypeActivePeers SignalType = "active_peers"
	SignalTypePeerJoined  SignalType = "peer_joined"
	SignalTypePeerLeft    SignalType = "peer_left"
)

// IsRelay reports whether frames of this type are unicast to a target peer.
func (t SignalType) IsRelay() bool {
	switch t {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypeICECandidate:
		return true
	}
	return false
}

// MediaState is a peer's live audio/video/screen-share flags.
type MediaState struct {
	AudioOn       bool `json:"audioOn"`
	VideoOn       bool `json:"videoOn"`
	ScreenSharing bool `json:"screenSharing"`
}

// MediaUpdate carries only the flags a client chose to change.
type MediaUpdate struct {
	AudioOn       *bool `json:"audioOn,omitempty"`
	VideoOn       *bool `json:"videoOn,omitempty"`
	ScreenSharing *bool `json:"screenSharing,omitempty"`
}

// Apply returns s with the present keys of u applied.
func (u MediaUpdate) Apply(s MediaState) MediaState {
	if u.AudioOn != nil {
		s.AudioOn = *u.AudioOn
	}
	if u.VideoOn != nil {
		s.VideoOn = *u.VideoOn
	}
	if u.ScreenSharing != nil {
		s.ScreenSharing = *u.ScreenSharing
	}
	return s
}

// MediaStatusRequest is the inbound media_status frame. The flags are read
// from `status`; top-level flags are accepted when `status` is absent.
type MediaStatusRequest struct {
	Type   SignalType   `json:"type"`
	Status *MediaUpdate `json:"status,omitempty"`
	MediaUpdate
}

// Update returns the effective partial update of the request.
func (r MediaStatusRequest) Update() MediaUpdate {
	if r.Status != nil {
		return *r.Status
	}
	return r.MediaUpdate
}

// LinkRequest is the inbound rtc_connected / rtc_disconnected frame.
type LinkRequest struct {
	Type   SignalType `json:"type"`
	PeerID string     `json:"peer_id"`
}

// PeerSummary describes one room member in active_peers.
type PeerSummary struct {
	PeerID string `json:"peer_id"`
	MediaState
}

// ActivePeersMessage is sent once to a newly accepted peer.
type ActivePeersMessage struct {
	Type   SignalType    `json:"type"`
	PeerID string        `json:"peer_id"`
	Peers  []PeerSummary `json:"peers"`
}

// PeerEvent is broadcast on join and on eviction.
type PeerEvent struct {
	Type   SignalType `json:"type"`
	PeerID string     `json:"peer_id"`
}

// MediaStatusMessage is broadcast after a media_status update and always
// carries all three flags.
type MediaStatusMessage struct {
	Type   SignalType `json:"type"`
	PeerID string     `json:"peer_id"`
	Status MediaState `json:"status"`
}

// ControlMessage is a bare `{"type": ...}` frame (ping, pong).
type ControlMessage struct {
	Type SignalType `json:"type"`
}
