package videoroom

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// PionPeerSession adapts a pion peer connection to the PeerSession
// interface. ICE candidate handling stays with the owner of the peer
// connection.
type PionPeerSession struct {
	pc *webrtc.PeerConnection
}

func NewPionPeerSession(pc *webrtc.PeerConnection) *PionPeerSession {
	return &PionPeerSession{pc: pc}
}

func (p *PionPeerSession) CreateOffer(ctx context.Context) (SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *PionPeerSession) SetLocalDescription(ctx context.Context, desc SessionDescription) error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (p *PionPeerSession) SetRemoteDescription(ctx context.Context, desc SessionDescription) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}
