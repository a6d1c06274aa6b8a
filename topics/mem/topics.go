package mem

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/packet"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
)

type provider struct {
	// Sub/unSub mutex
	lock sync.RWMutex

	// Subscription tree
	root *node

	// Subscriptions indexed by owning session and sid
	sessions map[uint64]map[uint64]*subscription
	count    int
	shutdown bool

	noResponders bool
	matchesPool  sync.Pool
	metrics      metrics.Informer
	log          *zap.SugaredLogger
}

var _ topicsTypes.Provider = (*provider)(nil)

// NewMemProvider returns an new instance of the provider, which is implements the
// TopicsProvider interface. provider is a hidden struct that stores the subject
// subscriptions in memory. The content is not persisted so
// when the server goes, everything will be gone
func NewMemProvider(config *topicsTypes.MemConfig) (topicsTypes.Provider, error) {
	p := &provider{
		root:         newNode("", nil),
		sessions:     make(map[uint64]map[uint64]*subscription),
		noResponders: config.NoResponders,
		metrics:      config.Metrics,
		log:          config.Log,
	}

	if p.metrics == nil {
		p.metrics = metrics.Discard()
	}

	if p.log == nil {
		p.log = zap.NewNop().Sugar()
	}

	p.matchesPool.New = func() interface{} {
		return &matches{
			queues: make(map[string][]*subscription),
		}
	}

	return p, nil
}

func (mT *provider) Subscribe(req topicsTypes.SubscribeReq) error {
	if req.Subscriber == nil {
		return topicsTypes.ErrInvalidSubscriber
	}

	if !topicsTypes.ValidateFilter(req.Subject) {
		return topicsTypes.ErrInvalidSubject
	}

	id := req.Subscriber.ID()

	mT.lock.Lock()
	defer mT.lock.Unlock()

	if mT.shutdown {
		return topicsTypes.ErrShutdown
	}

	session, ok := mT.sessions[id]
	if !ok {
		session = make(map[uint64]*subscription)
		mT.sessions[id] = session
	}

	if _, ok = session[req.SID]; ok {
		return topicsTypes.ErrAlreadyExists
	}

	sub := &subscription{
		s:       req.Subscriber,
		session: id,
		sid:     req.SID,
		subject: req.Subject,
		queue:   req.Queue,
	}

	mT.subscriptionInsert(sub)
	session[req.SID] = sub
	mT.count++

	mT.metrics.Subs().OnSubscribe()

	return nil
}

func (mT *provider) UnSubscribe(session, sid uint64) error {
	mT.lock.Lock()
	defer mT.lock.Unlock()

	sub := mT.lookup(session, sid)
	if sub == nil {
		return topicsTypes.ErrNotFound
	}

	mT.removeLocked(sub)

	return nil
}

func (mT *provider) AutoUnSubscribe(session, sid, max uint64) error {
	mT.lock.Lock()
	defer mT.lock.Unlock()

	sub := mT.lookup(session, sid)
	if sub == nil {
		return topicsTypes.ErrNotFound
	}

	if sub.limit(max) {
		mT.removeLocked(sub)
	}

	return nil
}

func (mT *provider) RemoveAll(session uint64) int {
	mT.lock.Lock()
	defer mT.lock.Unlock()

	subs := mT.sessions[session]
	count := len(subs)

	for _, sub := range subs {
		mT.removeLocked(sub)
	}

	delete(mT.sessions, session)

	return count
}

func (mT *provider) Publish(m *topicsTypes.Message, p topicsTypes.PublishParams) topicsTypes.PublishResult {
	var res topicsTypes.PublishResult

	found := mT.matchesPool.Get().(*matches)
	found.reset(&p)

	defer func() {
		found.reset(nil)
		mT.matchesPool.Put(found)
	}()

	mT.lock.RLock()
	if !mT.shutdown {
		mT.subscriptionSearch(m.Subject, found)
	}
	mT.lock.RUnlock()

	// deliver outside of the lock so slow subscribers or subscription changes
	// made by subscribers do not stall the tree
	for _, sub := range found.plain {
		mT.deliver(sub, m, &res)
	}

	for _, members := range found.queues {
		mT.deliverQueue(members, m, &res)
	}

	mT.metrics.Packets().OnDelivered(res.Matched)

	if res.Dropped > 0 {
		mT.metrics.Packets().OnDropped(res.Dropped)
	}

	if res.Matched == 0 && mT.noResponders && p.NoResponders && m.Reply != "" {
		mT.metrics.Packets().OnNoResponders()

		mT.Publish(&topicsTypes.Message{
			Subject: m.Reply,
			Header:  packet.NewStatusHeader(packet.StatusNoResponders, ""),
		}, topicsTypes.PublishParams{
			Publisher: p.Publisher,
			Echo:      true,
		})
	}

	return res
}

func (mT *provider) Count() int {
	mT.lock.RLock()
	defer mT.lock.RUnlock()

	return mT.count
}

func (mT *provider) Subscriptions(session uint64) int {
	mT.lock.RLock()
	defer mT.lock.RUnlock()

	return len(mT.sessions[session])
}

func (mT *provider) Shutdown() error {
	mT.lock.Lock()
	defer mT.lock.Unlock()

	if mT.shutdown {
		return topicsTypes.ErrShutdown
	}

	mT.shutdown = true

	for _, subs := range mT.sessions {
		for _, sub := range subs {
			mT.removeLocked(sub)
		}
	}

	mT.sessions = make(map[uint64]map[uint64]*subscription)

	return nil
}

func (mT *provider) lookup(session, sid uint64) *subscription {
	if subs, ok := mT.sessions[session]; ok {
		return subs[sid]
	}

	return nil
}

func (mT *provider) removeLocked(sub *subscription) {
	mT.subscriptionRemove(sub)

	if subs, ok := mT.sessions[sub.session]; ok {
		delete(subs, sub.sid)

		if len(subs) == 0 {
			delete(mT.sessions, sub.session)
		}
	}

	mT.count--
	mT.metrics.Subs().OnUnsubscribe(1)
}

// expire removes subscription which delivered its last message
func (mT *provider) expire(sub *subscription) {
	mT.lock.Lock()
	defer mT.lock.Unlock()

	if mT.lookup(sub.session, sub.sid) == sub {
		mT.removeLocked(sub)
	}
}

// deliver returns false if subscription can no longer take messages
func (mT *provider) deliver(sub *subscription, m *topicsTypes.Message, res *topicsTypes.PublishResult) bool {
	ok, last := sub.acquire()
	if !ok {
		return false
	}

	res.Matched++

	// dropped delivery still counts toward the limit
	if !sub.s.Publish(sub.sid, m) {
		res.Dropped++
	}

	if last {
		mT.expire(sub)
	}

	return true
}

// deliverQueue delivers message to exactly one member of the group.
// Members which reached their limit are skipped
func (mT *provider) deliverQueue(members []*subscription, m *topicsTypes.Message, res *topicsTypes.PublishResult) {
	start := rand.Intn(len(members))

	for i := 0; i < len(members); i++ {
		if mT.deliver(members[(start+i)%len(members)], m, res) {
			return
		}
	}
}
