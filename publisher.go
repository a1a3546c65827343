package videoroom

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/Connect-Club/connectclub-videoroom-client/internal/volatile"
	"github.com/sirupsen/logrus"
)

// Transactor sends one named request with a body and an optional session
// description and returns the single correlated plugin response.
type Transactor interface {
	Transaction(ctx context.Context, kind string, body map[string]interface{}, jsep *SessionDescription, expect string) (*PluginResponse, error)
}

// PeerSession wraps a local media negotiation endpoint.
type PeerSession interface {
	CreateOffer(ctx context.Context) (SessionDescription, error)
	SetLocalDescription(ctx context.Context, desc SessionDescription) error
	SetRemoteDescription(ctx context.Context, desc SessionDescription) error
}

type publishingConfig struct {
	Audio bool
	Video bool
}

// Publisher drives join, publish and republish for one participant in one
// room and classifies the messages the gateway pushes out-of-band.
//
// At most one JoinAndPublish may be in flight per instance; concurrent
// joins race on the member identity and the stored descriptions and must
// be serialized by the caller. After a failed join the instance is
// unusable and has to be discarded.
type Publisher struct {
	log     *logrus.Entry
	tx      Transactor
	peer    PeerSession
	emitter Emitter
	filter  SDPFilter

	stateLock       sync.Mutex
	roomId          interface{}
	roomPin         string
	memberId        int64
	privateMemberId int64
	offerSdp        string
	answerSdp       string
	joined          bool

	publishing *volatile.Value[publishingConfig]
}

type PublisherOption func(p *Publisher)

// WithSDPFilter enables rewriting of the offer and answer descriptions.
// The filtered text is both stored and transmitted.
func WithSDPFilter(filter SDPFilter) PublisherOption {
	return func(p *Publisher) {
		p.filter = filter
	}
}

func NewPublisher(tx Transactor, peer PeerSession, emitter Emitter, opts ...PublisherOption) *Publisher {
	publisherId := strconv.FormatUint(rand.Uint64(), 10)

	p := &Publisher{
		log:        logrus.WithField("publisherId", publisherId),
		tx:         tx,
		peer:       peer,
		emitter:    emitter,
		publishing: volatile.NewValue(publishingConfig{Audio: true, Video: true}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type joinResponseData struct {
	Id         *int64             `json:"id"`
	PrivateId  *int64             `json:"private_id"`
	Publishers *[]RemotePublisher `json:"publishers"`
}

type configureResponseData struct {
	Configured string `json:"configured"`
}

// JoinAndPublish joins the room as a publisher and negotiates the media
// session in one exchange. It returns the publishers already in the room.
//
// The local description is committed before the offer is transmitted, so
// the answer always applies against the committed local state. Failures
// are logged and returned unchanged; nothing is rolled back.
func (p *Publisher) JoinAndPublish(ctx context.Context, room interface{}, displayName, roomPin string, relayAudio, relayVideo bool) ([]RemotePublisher, error) {
	p.log.Infof("connecting to the room %v", room)

	p.stateLock.Lock()
	p.roomId = room
	p.roomPin = roomPin
	p.stateLock.Unlock()

	body := createJoinAndConfigureRequest(room, displayName, roomPin, relayAudio, relayVideo)

	offer, err := p.peer.CreateOffer(ctx)
	if err != nil {
		p.log.WithError(err).Error("error connecting to room, create offer failed")
		return nil, err
	}
	p.log.Info("sdp offer initialized")

	if err := p.peer.SetLocalDescription(ctx, offer); err != nil {
		p.log.WithError(err).Error("error connecting to room, set local description failed")
		return nil, err
	}
	if p.filter != nil && offer.SDP != "" {
		offer.SDP = p.filter.Filter(offer.SDP)
	}
	p.stateLock.Lock()
	p.offerSdp = offer.SDP
	p.stateLock.Unlock()

	resp, err := p.tx.Transaction(ctx, "message", body, &offer, "event")
	if err != nil {
		p.log.WithError(err).Error("error connecting to room")
		return nil, err
	}

	var data joinResponseData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			err = fmt.Errorf("%w, malformed join response: %v", JoinRoomError, err)
			p.log.WithError(err).Error("error connecting to room")
			return nil, err
		}
	}
	if data.Id == nil || data.PrivateId == nil || data.Publishers == nil {
		err := fmt.Errorf("%w, incomplete join response: %s", JoinRoomError, resp.Data)
		p.log.WithError(err).Error("error connecting to room")
		return nil, err
	}
	if resp.Jsep == nil {
		err := fmt.Errorf("%w, lacking jsep field in response", JoinRoomError)
		p.log.WithError(err).Error("error connecting to room")
		return nil, err
	}

	answer := *resp.Jsep
	if p.filter != nil && answer.SDP != "" {
		answer.SDP = p.filter.Filter(answer.SDP)
	}

	p.stateLock.Lock()
	p.memberId = *data.Id
	p.privateMemberId = *data.PrivateId
	p.answerSdp = answer.SDP
	p.joined = true
	p.stateLock.Unlock()

	if err := p.peer.SetRemoteDescription(ctx, answer); err != nil {
		p.log.WithError(err).Error("error connecting to room, set remote description failed")
		return nil, err
	}
	p.log.Info("remote description set")

	return *data.Publishers, nil
}

// ModifyPublishing reconfigures the published audio and video flags. Both
// flags commit together, and only when the gateway acknowledges with
// configured == "ok". There is no sequencing of overlapping calls; the
// last validated response wins.
func (p *Publisher) ModifyPublishing(ctx context.Context, audio, video bool) error {
	p.stateLock.Lock()
	p.log.Infof("modifying publishing for member %d in room %v", p.memberId, p.roomId)
	roomPin := p.roomPin
	p.stateLock.Unlock()

	body := createConfigureRequest(audio, video, roomPin)

	resp, err := p.tx.Transaction(ctx, "message", body, nil, "event")
	if err != nil {
		p.log.WithError(err).Error("error modifying publishing")
		return err
	}

	var data configureResponseData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			err = fmt.Errorf("%w, malformed configure response: %v", ConfigureError, err)
			p.log.WithError(err).Error("error modifying publishing")
			return err
		}
	}
	if data.Configured != "ok" {
		err := fmt.Errorf("%w, configured = %q", ConfigureError, data.Configured)
		p.log.WithError(err).Error("error modifying publishing")
		return err
	}

	p.publishing.Store(publishingConfig{Audio: audio, Video: video})
	p.log.Info("publishing modified")
	return nil
}

// The toggles reuse the untouched dimension's current value so one flag
// never resurrects the other to its default.

func (p *Publisher) StopAudio(ctx context.Context) error {
	p.log.Info("stopping published audio")
	return p.ModifyPublishing(ctx, false, p.publishing.Load().Video)
}

func (p *Publisher) StartAudio(ctx context.Context) error {
	p.log.Info("starting published audio")
	return p.ModifyPublishing(ctx, true, p.publishing.Load().Video)
}

func (p *Publisher) StopVideo(ctx context.Context) error {
	p.log.Info("stopping published video")
	return p.ModifyPublishing(ctx, p.publishing.Load().Audio, false)
}

func (p *Publisher) StartVideo(ctx context.Context) error {
	p.log.Info("starting published video")
	return p.ModifyPublishing(ctx, p.publishing.Load().Audio, true)
}

// HandleMessage classifies a message the gateway pushed out-of-band and
// re-emits it as a typed local event. It never fails outward; anything it
// does not recognize is logged and absorbed. It keeps no roster: publisher
// updates are forwarded, never diffed or cached.
func (p *Publisher) HandleMessage(data map[string]interface{}, msg json.RawMessage) {
	videoroom, _ := data["videoroom"].(string)
	if len(data) == 0 || videoroom == "" {
		p.log.Errorf("got unknown message: %s", msg)
		return
	}

	if videoroom == "slow_link" {
		p.log.Debugf("got slow_link: %v", data)
		p.emitter.Emit(SlowLinkEvent, data)
		return
	}

	if videoroom == "event" {
		p.stateLock.Lock()
		roomId := p.roomId
		p.stateLock.Unlock()
		if !sameRoom(roomId, data["room"]) {
			p.log.Errorf("got event for unknown room, current = %v, msg = %s", roomId, msg)
			return
		}

		if joining, ok := data["joining"]; ok && joining != nil {
			p.emitter.Emit(RemoteMemberJoinedEvent, joining)
		} else if unpublished, ok := data["unpublished"]; ok && unpublished != nil {
			p.emitter.Emit(RemoteMemberUnpublishedEvent, unpublished)
		} else if leaving, ok := data["leaving"]; ok && leaving != nil {
			p.emitter.Emit(RemoteMemberLeavingEvent, leaving)
		} else if publishers, ok := data["publishers"].([]interface{}); ok {
			p.emitter.Emit(PublishersUpdatedEvent, publishers)
		} else {
			p.log.Errorf("got unknown event: %s", msg)
		}
		return
	}

	// "destroyed" and the unpublished acknowledgment for the local member
	// land here until there is a decision on how to surface them.
	p.log.Errorf("unhandled message: %s, %s", videoroom, msg)
}

// sameRoom compares the stored room identifier with one that arrived over
// JSON, where numbers decode as float64 regardless of how the room was
// specified at join time.
func sameRoom(current, got interface{}) bool {
	if current == nil || got == nil {
		return false
	}
	if currentNum, ok := roomNumber(current); ok {
		gotNum, ok := roomNumber(got)
		return ok && currentNum == gotNum
	}
	currentStr, currentOk := current.(string)
	gotStr, gotOk := got.(string)
	return currentOk && gotOk && currentStr == gotStr
}

func roomNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func (p *Publisher) Room() interface{} {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.roomId
}

func (p *Publisher) Joined() bool {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.joined
}

// MemberId returns the public and private member ids the gateway assigned
// at join time, zero before a successful join.
func (p *Publisher) MemberId() (int64, int64) {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.memberId, p.privateMemberId
}

// OfferSdp and AnswerSdp expose the negotiated descriptions for
// introspection. When filtering is enabled they hold the filtered text.

func (p *Publisher) OfferSdp() string {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.offerSdp
}

func (p *Publisher) AnswerSdp() string {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.answerSdp
}
