package mem

import (
	"strings"
	"sync"

	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
)

type subscription struct {
	s       topicsTypes.Subscriber
	session uint64
	sid     uint64
	subject string
	queue   string
	node    *node

	lock      sync.Mutex
	delivered uint64
	max       uint64
	closed    bool
}

// acquire reserves one delivery. last is true when reserved delivery
// exhausts the limit and subscription must be removed
func (s *subscription) acquire() (ok bool, last bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed || (s.max > 0 && s.delivered >= s.max) {
		return false, false
	}

	s.delivered++

	return true, s.max > 0 && s.delivered == s.max
}

// limit sets max deliveries since creation.
// Returns true if limit already reached
func (s *subscription) limit(max uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.max = max

	return s.delivered >= max
}

func (s *subscription) close() {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
}

type subscribers map[*subscription]struct{}

type node struct {
	token    string
	subs     subscribers
	queues   map[string]subscribers
	parent   *node
	children map[string]*node
}

func newNode(token string, parent *node) *node {
	return &node{
		token:    token,
		subs:     make(subscribers),
		queues:   make(map[string]subscribers),
		children: make(map[string]*node),
		parent:   parent,
	}
}

func (n *node) empty() bool {
	return len(n.subs) == 0 && len(n.queues) == 0 && len(n.children) == 0
}

// matches collected for single publish
type matches struct {
	plain  []*subscription
	queues map[string][]*subscription
	params *topicsTypes.PublishParams
}

func (m *matches) reset(p *topicsTypes.PublishParams) {
	m.plain = m.plain[:0]
	for q := range m.queues {
		delete(m.queues, q)
	}

	m.params = p
}

func (m *matches) empty() bool {
	return len(m.plain) == 0 && len(m.queues) == 0
}

// echo filter applies before queue member selection
func (m *matches) skip(s *subscription) bool {
	return !m.params.Echo && s.session == m.params.Publisher
}

func (n *node) getSubscribers(m *matches) {
	for s := range n.subs {
		if !m.skip(s) {
			m.plain = append(m.plain, s)
		}
	}

	for q, members := range n.queues {
		for s := range members {
			if !m.skip(s) {
				m.queues[q] = append(m.queues[q], s)
			}
		}
	}
}

func (mT *provider) leafInsertNode(tokens []string) *node {
	root := mT.root

	for _, token := range tokens {
		// Add node if it doesn't already exist
		n, ok := root.children[token]
		if !ok {
			n = newNode(token, root)

			root.children[token] = n
		}

		root = n
	}

	return root
}

func (mT *provider) subscriptionInsert(sub *subscription) {
	root := mT.leafInsertNode(strings.Split(sub.subject, topicsTypes.SEP))

	if sub.queue == "" {
		root.subs[sub] = struct{}{}
	} else {
		members, ok := root.queues[sub.queue]
		if !ok {
			members = make(subscribers)
			root.queues[sub.queue] = members
		}

		members[sub] = struct{}{}
	}

	sub.node = root
}

func (mT *provider) subscriptionRemove(sub *subscription) {
	sub.close()

	root := sub.node

	if sub.queue == "" {
		delete(root.subs, sub)
	} else if members, ok := root.queues[sub.queue]; ok {
		delete(members, sub)

		if len(members) == 0 {
			delete(root.queues, sub.queue)
		}
	}

	// Run up and on each level and check if level has subscriptions and nested nodes
	// If both are empty tell parent node to remove that token
	for leafNode := root; leafNode.parent != nil && leafNode.empty(); leafNode = leafNode.parent {
		delete(leafNode.parent.children, leafNode.token)
	}
}

func subscriptionRecurseSearch(root *node, tokens []string, m *matches) {
	if len(tokens) == 0 {
		// leaf level of the subject
		root.getSubscribers(m)
		return
	}

	// full wildcard takes one or more remaining tokens
	if n, ok := root.children[topicsTypes.FWC]; ok {
		n.getSubscribers(m)
	}

	if n, ok := root.children[tokens[0]]; ok {
		subscriptionRecurseSearch(n, tokens[1:], m)
	}

	if n, ok := root.children[topicsTypes.SWC]; ok {
		subscriptionRecurseSearch(n, tokens[1:], m)
	}
}

func (mT *provider) subscriptionSearch(subject string, m *matches) {
	subscriptionRecurseSearch(mT.root, strings.Split(subject, topicsTypes.SEP), m)
}
