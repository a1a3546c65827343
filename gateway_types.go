package videoroom

import (
	"encoding/json"
)

// SessionDescription is an opaque offer or answer blob exchanged with the
// gateway. The client never parses the SDP text beyond optional filtering.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// RemotePublisher describes another room participant that is currently
// publishing, as reported by the gateway.
type RemotePublisher struct {
	Id         int64  `json:"id"`
	Display    string `json:"display,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	Talking    bool   `json:"talking,omitempty"`
}

// PluginResponse is the correlated reply to a plugin transaction: the
// plugin-level data document and the session description, when present.
type PluginResponse struct {
	Data json.RawMessage
	Jsep *SessionDescription
}

type envelope struct {
	Janus       string                 `json:"janus"`
	Transaction string                 `json:"transaction,omitempty"`
	SessionId   int64                  `json:"session_id,omitempty"`
	HandleId    int64                  `json:"handle_id,omitempty"`
	Sender      int64                  `json:"sender,omitempty"`
	Plugin      string                 `json:"plugin,omitempty"`
	Body        map[string]interface{} `json:"body,omitempty"`
	Jsep        *SessionDescription    `json:"jsep,omitempty"`
	Plugindata  *pluginData            `json:"plugindata,omitempty"`
	Error       *gatewayError          `json:"error,omitempty"`
	Data        *idData                `json:"data,omitempty"`
	Uplink      *bool                  `json:"uplink,omitempty"`
	Lost        int64                  `json:"lost,omitempty"`
}

type pluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data"`
}

type gatewayError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type idData struct {
	Id int64 `json:"id"`
}
