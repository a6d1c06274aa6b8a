package connection

import (
	"github.com/pkg/errors"

	"github.com/VolantMQ/vlnats/packet"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
)

var (
	okOp   = &packet.Ok{}
	pongOp = &packet.Pong{}
)

func (s *impl) processIncoming(p packet.IFace) error {
	s.touch()
	s.metric.Packets().OnRecv(p.Type())

	var err error

	switch pkt := p.(type) {
	case *packet.Ping:
		err = s.tx.send(pongOp)
	case *packet.Pong:
	case *packet.Info:
		err = s.tx.send(&packet.Info{Info: s.serverInfo()})
	case *packet.Connect:
		err = s.onConnect(pkt)
	case *packet.Publish:
		err = s.onPublish(pkt)
	case *packet.Subscribe:
		err = s.onSubscribe(pkt)
	case *packet.UnSubscribe:
		err = s.onUnSubscribe(pkt)
	case *packet.Ok, *packet.Err:
		// acknowledgements from client carry nothing to act on
	default:
		// MSG/HMSG flow server to client only
		err = packet.ErrUnknownOperation
	}

	return err
}

func (s *impl) verbose() bool {
	return s.connInfo.Verbose
}

func (s *impl) ack() error {
	if s.verbose() {
		return s.tx.send(okOp)
	}

	return nil
}

// reject replies -ERR keeping connection open
func (s *impl) reject(reason error) error {
	s.metric.Packets().OnRejected(1)

	return s.tx.send(&packet.Err{Reason: packet.Reason(reason)})
}

func (s *impl) onConnect(pkt *packet.Connect) error {
	s.infoLock.Lock()
	s.connInfo = pkt.Info
	s.infoLock.Unlock()

	s.headers.Store(pkt.Info.Headers)

	s.log.Debugw("connect",
		"name", pkt.Info.Name,
		"lang", pkt.Info.Lang,
		"version", pkt.Info.Version,
		"verbose", pkt.Info.Verbose,
		"echo", pkt.Info.Echo,
		"headers", pkt.Info.Headers)

	s.resetHeartbeat()

	return s.ack()
}

func (s *impl) onPublish(pkt *packet.Publish) error {
	if pkt.Header != nil && !s.connInfo.Headers {
		return errors.Wrap(packet.ErrParser, "headers not negotiated")
	}

	if !topicsTypes.ValidateSubject(pkt.Subject) ||
		(len(pkt.Reply) > 0 && !topicsTypes.ValidateSubject(pkt.Reply)) {
		return s.reject(packet.ErrInvalidSubject)
	}

	s.topics.Publish(&topicsTypes.Message{
		Subject: pkt.Subject,
		Reply:   pkt.Reply,
		Header:  pkt.Header,
		Payload: pkt.Payload,
	}, topicsTypes.PublishParams{
		Publisher:    s.id,
		Echo:         s.connInfo.Echo,
		NoResponders: s.connInfo.Headers && s.connInfo.NoResponders,
	})

	return s.ack()
}

func (s *impl) onSubscribe(pkt *packet.Subscribe) error {
	err := s.subscribe(topicsTypes.SubscribeReq{
		Subject:    pkt.Subject,
		Queue:      pkt.Queue,
		SID:        pkt.SID,
		Subscriber: s,
	})

	switch err {
	case nil:
	case topicsTypes.ErrAlreadyExists:
		s.log.Debugw("duplicate subscription ignored", "sid", pkt.SID, "subject", pkt.Subject)
	case topicsTypes.ErrInvalidSubject:
		return s.reject(packet.ErrInvalidSubject)
	default:
		return err
	}

	return s.ack()
}

// subscribe registers in router unless teardown started
func (s *impl) subscribe(req topicsTypes.SubscribeReq) error {
	s.subLock.Lock()
	defer s.subLock.Unlock()

	select {
	case <-s.quit:
		return ErrClosed
	default:
	}

	return s.topics.Subscribe(req)
}

func (s *impl) onUnSubscribe(pkt *packet.UnSubscribe) error {
	var err error

	if pkt.HasMax {
		err = s.topics.AutoUnSubscribe(s.id, pkt.SID, pkt.Max)
	} else {
		err = s.topics.UnSubscribe(s.id, pkt.SID)
	}

	if err != nil && err != topicsTypes.ErrNotFound {
		return err
	}

	return s.ack()
}
