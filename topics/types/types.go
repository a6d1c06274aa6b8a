package topicsTypes

import (
	"errors"
	"strings"

	"github.com/VolantMQ/vlnats/packet"
)

const (
	// SEP is the subject token separator
	SEP = "."

	// SWC is the single token wildcard
	SWC = "*"

	// FWC is the full wildcard, matches one or more trailing tokens
	FWC = ">"
)

var (
	// ErrInvalidArgs invalid arguments provided
	ErrInvalidArgs = errors.New("topics: invalid arguments")

	// ErrUnknownProvider if provider is unknown
	ErrUnknownProvider = errors.New("topics: unknown provider")

	// ErrAlreadyExists object already exists
	ErrAlreadyExists = errors.New("topics: already exists")

	// ErrNotFound object not found
	ErrNotFound = errors.New("topics: not found")

	// ErrInvalidSubject subject or filter does not follow subject grammar
	ErrInvalidSubject = errors.New("topics: invalid subject")

	// ErrInvalidSubscriber invalid subscriber object
	ErrInvalidSubscriber = errors.New("topics: subscriber cannot be nil")

	// ErrShutdown provider is shut down
	ErrShutdown = errors.New("topics: shutdown")
)

// Message routed from publisher to subscribers.
// Shared by every delivery thus must not be modified once published
type Message struct {
	Subject string
	Reply   string
	Header  *packet.Header
	Payload []byte
}

// Subscriber used inside each session as an object to provide to topic manager upon subscribe
type Subscriber interface {
	// ID of the session owning subscriptions
	ID() uint64

	// Publish queues message for delivery under given sid.
	// Must not block. Returns false if message has been dropped
	Publish(sid uint64, m *Message) bool
}

// SubscribeReq subscription request
type SubscribeReq struct {
	Subject    string
	Queue      string
	SID        uint64
	Subscriber Subscriber
}

// PublishParams describes publisher of the message
type PublishParams struct {
	// Publisher session id
	Publisher uint64

	// Echo if false subscriptions of publisher are excluded from delivery
	Echo bool

	// NoResponders publisher asks for status reply when nobody is subscribed
	NoResponders bool
}

// PublishResult of routing single message
type PublishResult struct {
	// Matched subscriptions selected for delivery
	Matched int

	// Dropped deliveries refused by slow consumers
	Dropped int
}

// Provider interface
type Provider interface {
	Subscribe(SubscribeReq) error
	UnSubscribe(session, sid uint64) error
	// AutoUnSubscribe limits subscription to max deliveries since creation
	AutoUnSubscribe(session, sid, max uint64) error
	// RemoveAll drops every subscription of the session and returns how many have been removed
	RemoveAll(session uint64) int
	Publish(*Message, PublishParams) PublishResult
	Count() int
	Subscriptions(session uint64) int
	Shutdown() error
}

// ValidateSubject checks subject is exact: non-empty, no empty tokens and no wildcards
func ValidateSubject(subject string) bool {
	return validate(subject, false)
}

// ValidateFilter checks subscription subject. Wildcards must occupy entire token
// and full wildcard allowed at the last token only
func ValidateFilter(filter string) bool {
	return validate(filter, true)
}

func validate(s string, wildcards bool) bool {
	if len(s) == 0 {
		return false
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			return false
		}
	}

	tokens := strings.Split(s, SEP)

	for i, t := range tokens {
		switch {
		case len(t) == 0:
			return false
		case t == SWC:
			if !wildcards {
				return false
			}
		case t == FWC:
			if !wildcards || i != len(tokens)-1 {
				return false
			}
		}
	}

	return true
}

// Match reports whether exact subject matches filter
func Match(filter, subject string) bool {
	ft := strings.Split(filter, SEP)
	st := strings.Split(subject, SEP)

	for i, t := range ft {
		if t == FWC {
			return len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if t != SWC && t != st[i] {
			return false
		}
	}

	return len(ft) == len(st)
}
