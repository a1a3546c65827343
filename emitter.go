package videoroom

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Events emitted towards local consumers. These are the only outward
// notification surface besides the value JoinAndPublish returns.
const (
	RemoteMemberJoinedEvent      = "remoteMemberJoined"
	RemoteMemberUnpublishedEvent = "remoteMemberUnpublished"
	RemoteMemberLeavingEvent     = "remoteMemberLeaving"
	PublishersUpdatedEvent       = "publishersUpdated"
	SlowLinkEvent                = "slowLink"
)

// Emitter receives the locally named events produced by the inbound
// message classifier.
type Emitter interface {
	Emit(event string, payload interface{})
}

// CallbackEmitter delivers events to a single consumer callback on a
// dedicated dispatch goroutine, so a slow consumer never blocks the
// gateway read loop.
type CallbackEmitter struct {
	log     *logrus.Entry
	fn      func(event string, payload interface{})
	eventCh chan func()
	closeCh chan signal
	doneCh  chan signal
}

func NewCallbackEmitter(fn func(event string, payload interface{})) *CallbackEmitter {
	return &CallbackEmitter{
		log:     logrus.WithField("component", "emitter"),
		fn:      fn,
		eventCh: make(chan func(), 1024),
		closeCh: make(chan signal),
		doneCh:  make(chan signal),
	}
}

func (e *CallbackEmitter) Start() {
	go func() {
		defer close(e.doneCh)
		for {
			select {
			case <-e.closeCh:
				return
			case dispatch, ok := <-e.eventCh:
				if !ok {
					return
				}
				dispatch()
			}
		}
	}()
}

func (e *CallbackEmitter) Emit(event string, payload interface{}) {
	select {
	case e.eventCh <- func() {
		e.log.Info("⤵")
		defer e.log.Info("⤴")

		e.fn(event, payload)
	}:
	default:
		e.log.Warnf("event channel is full, dropping %s", event)
	}
}

func (e *CallbackEmitter) Stop() {
	close(e.closeCh)

	select {
	case <-time.After(time.Second * 10):
		e.log.Panic("too long waiting doneCh")
	case <-e.doneCh:
		e.log.Info("doneCh closed")
	}
}
