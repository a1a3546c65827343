package videoroom

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/Connect-Club/connectclub-videoroom-client/internal/volatile"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	videoRoomPlugin = "janus.plugin.videoroom"
	gatewayProtocol = "janus-protocol"

	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 512 * 1024
	keepaliveInterval = 25 * time.Second
)

// Session is one gateway session over a websocket connection. It owns the
// read/write pumps, correlates transactions with their responses and
// routes pushed messages to the plugin handle they address.
//
// There is no transport-level reconnection: when the connection dies the
// session is dead and pending transactions fail with SessionClosedError.
type Session struct {
	log  *logrus.Entry
	conn *websocket.Conn
	id   int64

	outgoing  chan []byte
	closeCh   chan signal
	closeOnce sync.Once

	isActive *volatile.Value[bool]

	pendingLock sync.Mutex
	pending     map[string]chan *envelope

	handlesLock sync.Mutex
	handles     map[int64]*Handle

	keepaliveTask *task
}

// Connect dials the gateway, starts the pumps and creates the session.
func Connect(ctx context.Context, address string) (*Session, error) {
	clientId := strconv.FormatUint(rand.Uint64(), 10)

	log := logrus.WithField("clientId", clientId)
	log.Info("🚀")

	dialer := websocket.Dialer{
		Subprotocols:     []string{gatewayProtocol},
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w, cannot connect to gateway: %v", ServerError, err)
	}

	s := &Session{
		log:      log,
		conn:     conn,
		outgoing: make(chan []byte, 64),
		closeCh:  make(chan signal),
		isActive: volatile.NewValue(false),
		pending:  make(map[string]chan *envelope),
		handles:  make(map[int64]*Handle),
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readPump()
	go s.writePump()

	reply, err := s.roundTrip(ctx, &envelope{Janus: "create"}, "success")
	if err != nil {
		s.shutdown()
		return nil, err
	}
	if reply.Data == nil || reply.Data.Id == 0 {
		s.shutdown()
		return nil, fmt.Errorf("%w, create response lacks a session id", ServerError)
	}
	s.id = reply.Data.Id
	s.log = log.WithField("sessionId", s.id)

	s.keepaliveTask = createPeriodicTask(s.keepalive, keepaliveInterval)
	s.isActive.Store(true)
	return s, nil
}

func (s *Session) IsActive() bool {
	return s.isActive.Load()
}

// AttachVideoRoom attaches the videoroom plugin and returns the handle
// that speaks for it.
func (s *Session) AttachVideoRoom(ctx context.Context) (*Handle, error) {
	s.log.Info("🚀")

	if !s.isActive.Load() {
		return nil, InactiveSessionError
	}

	reply, err := s.roundTrip(ctx, &envelope{Janus: "attach", SessionId: s.id, Plugin: videoRoomPlugin}, "success")
	if err != nil {
		s.log.WithError(err).Error("attach failed")
		return nil, err
	}
	if reply.Data == nil || reply.Data.Id == 0 {
		return nil, fmt.Errorf("%w, attach response lacks a handle id", ServerError)
	}

	h := &Handle{
		log:     s.log.WithField("handleId", reply.Data.Id),
		session: s,
		id:      reply.Data.Id,
	}
	s.handlesLock.Lock()
	s.handles[h.id] = h
	s.handlesLock.Unlock()
	return h, nil
}

// roundTrip sends one envelope and waits for the first non-ack reply with
// the same transaction id.
func (s *Session) roundTrip(ctx context.Context, msg *envelope, expect string) (*envelope, error) {
	msg.Transaction = uuid.NewString()

	replyCh := make(chan *envelope, 4)
	s.pendingLock.Lock()
	s.pending[msg.Transaction] = replyCh
	s.pendingLock.Unlock()
	defer func() {
		s.pendingLock.Lock()
		delete(s.pending, msg.Transaction)
		s.pendingLock.Unlock()
	}()

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal %q request: %w", msg.Janus, err)
	}

	select {
	case s.outgoing <- payload:
	case <-s.closeCh:
		return nil, SessionClosedError
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case reply := <-replyCh:
			if reply.Janus == "ack" {
				continue
			}
			if reply.Error != nil {
				return nil, fmt.Errorf("%w, code = %d, reason = %s", ServerError, reply.Error.Code, reply.Error.Reason)
			}
			if reply.Janus != expect {
				return nil, fmt.Errorf("%w, expected %q response, got %q", ServerError, expect, reply.Janus)
			}
			return reply, nil
		case <-s.closeCh:
			return nil, SessionClosedError
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Session) readPump() {
	defer s.shutdown()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.log.WithError(err).Info("gateway connection closed")
			return
		}
		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.WithError(err).Errorf("cannot unmarshal gateway message: %s", raw)
			continue
		}
		s.dispatch(&msg, raw)
	}
}

func (s *Session) dispatch(msg *envelope, raw []byte) {
	if msg.Transaction != "" {
		s.pendingLock.Lock()
		replyCh, isPending := s.pending[msg.Transaction]
		s.pendingLock.Unlock()
		if isPending {
			select {
			case replyCh <- msg:
			default:
				s.log.Warnf("pending transaction channel is full, transaction = %s", msg.Transaction)
			}
			return
		}
	}

	if msg.Sender != 0 {
		s.handlesLock.Lock()
		h, known := s.handles[msg.Sender]
		s.handlesLock.Unlock()
		if known {
			h.deliver(msg, raw)
			return
		}
	}

	s.log.Debugf("skip message with no consumer: %s", raw)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.shutdown()
	}()

	for {
		select {
		case payload := <-s.outgoing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.WithError(err).Info("gateway write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) keepalive(ctx context.Context) {
	if !s.isActive.Load() {
		return
	}
	payload, err := json.Marshal(&envelope{Janus: "keepalive", SessionId: s.id, Transaction: uuid.NewString()})
	if err != nil {
		s.log.WithError(err).Error("cannot marshal keepalive")
		return
	}
	select {
	case s.outgoing <- payload:
	case <-s.closeCh:
	case <-ctx.Done():
	}
}

// Close detaches the handles and destroys the session best-effort, then
// tears the connection down.
func (s *Session) Close() {
	s.log.Info("🚀")

	if !s.isActive.Load() {
		s.shutdown()
		return
	}
	s.isActive.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	s.handlesLock.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handlesLock.Unlock()

	for _, h := range handles {
		if _, err := s.roundTrip(ctx, &envelope{Janus: "detach", SessionId: s.id, HandleId: h.id}, "success"); err != nil {
			s.log.WithError(err).Warnf("detach failed, handleId = %d", h.id)
		}
	}
	if _, err := s.roundTrip(ctx, &envelope{Janus: "destroy", SessionId: s.id}, "success"); err != nil {
		s.log.WithError(err).Warn("destroy failed")
	}

	if err := s.keepaliveTask.stop(time.Second * 10); err != nil {
		s.log.WithError(err).Warn("cannot stop keepalive task")
	}
	s.shutdown()
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		_ = s.conn.Close()
	})
}

// Handle is one attached videoroom plugin handle. It implements Transactor
// and forwards the gateway's pushed messages to a bound consumer.
type Handle struct {
	log     *logrus.Entry
	session *Session
	id      int64

	consumerLock sync.Mutex
	consumer     func(data map[string]interface{}, msg json.RawMessage)
}

func (h *Handle) Id() int64 {
	return h.id
}

// OnMessage binds the consumer for pushed messages. Messages arriving
// before a consumer is bound are logged and dropped.
func (h *Handle) OnMessage(fn func(data map[string]interface{}, msg json.RawMessage)) {
	h.consumerLock.Lock()
	h.consumer = fn
	h.consumerLock.Unlock()
}

func (h *Handle) Transaction(ctx context.Context, kind string, body map[string]interface{}, jsep *SessionDescription, expect string) (*PluginResponse, error) {
	if !h.session.isActive.Load() {
		return nil, InactiveSessionError
	}

	msg := &envelope{
		Janus:     kind,
		SessionId: h.session.id,
		HandleId:  h.id,
		Body:      body,
		Jsep:      jsep,
	}
	reply, err := h.session.roundTrip(ctx, msg, expect)
	if err != nil {
		return nil, err
	}

	resp := &PluginResponse{Jsep: reply.Jsep}
	if reply.Plugindata != nil {
		resp.Data = reply.Plugindata.Data
	}

	var pluginErr struct {
		Error     string `json:"error"`
		ErrorCode int    `json:"error_code"`
	}
	if len(resp.Data) > 0 && json.Unmarshal(resp.Data, &pluginErr) == nil && pluginErr.ErrorCode != 0 {
		return nil, fmt.Errorf("%w, code = %d, reason = %s", PluginError, pluginErr.ErrorCode, pluginErr.Error)
	}
	return resp, nil
}

func (h *Handle) deliver(msg *envelope, raw []byte) {
	h.consumerLock.Lock()
	consumer := h.consumer
	h.consumerLock.Unlock()
	if consumer == nil {
		h.log.Warnf("skip message for handle without consumer: %s", raw)
		return
	}

	data := map[string]interface{}{}
	switch {
	case msg.Plugindata != nil && len(msg.Plugindata.Data) > 0:
		if err := json.Unmarshal(msg.Plugindata.Data, &data); err != nil {
			h.log.WithError(err).Errorf("cannot unmarshal plugin data: %s", raw)
			return
		}
	case msg.Janus == "slow_link":
		// gateway-level degraded network signal, normalized into the
		// plugin message shape the classifier understands
		data["videoroom"] = "slow_link"
		data["lost"] = msg.Lost
		if msg.Uplink != nil {
			data["uplink"] = *msg.Uplink
		}
	default:
		h.log.Debugf("skip gateway notification: %s", raw)
		return
	}

	consumer(data, raw)
}
