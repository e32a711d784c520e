package core

import (
	"sync"

	"github.com/vovakirdan/drawbridge/internal/discord"
)

// nonceCap bounds the outstanding-nonce set. Unmatched nonces age out
// with normal traffic; the cap only matters when echoes are lost.
const nonceCap = 64

// NonceSet tracks the nonces of messages this session has sent but not
// yet seen echoed on the event stream. A matched nonce moves to a
// small consumed ring so a duplicate delivery of the same echo is also
// suppressed instead of rendered as a fresh message.
type NonceSet struct {
	mu          sync.Mutex
	pending     []string
	pendingSet  map[string]struct{}
	consumed    []string
	consumedSet map[string]struct{}
}

// NewNonceSet constructs an empty set.
func NewNonceSet() *NonceSet {
	return &NonceSet{
		pendingSet:  make(map[string]struct{}),
		consumedSet: make(map[string]struct{}),
	}
}

// Add records an outstanding nonce, evicting the oldest entry at
// capacity.
func (n *NonceSet) Add(nonce string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.pendingSet[nonce]; ok {
		return
	}
	if len(n.pending) >= nonceCap {
		oldest := n.pending[0]
		n.pending = n.pending[1:]
		delete(n.pendingSet, oldest)
	}
	n.pending = append(n.pending, nonce)
	n.pendingSet[nonce] = struct{}{}
}

// Consume reports whether an event carrying this nonce is our own echo
// and must be suppressed. The first match moves the nonce from pending
// to consumed; later matches hit the consumed ring so re-deliveries
// stay silent.
func (n *NonceSet) Consume(nonce string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.pendingSet[nonce]; ok {
		delete(n.pendingSet, nonce)
		for i, v := range n.pending {
			if v == nonce {
				n.pending = append(n.pending[:i], n.pending[i+1:]...)
				break
			}
		}
		if len(n.consumed) >= nonceCap {
			oldest := n.consumed[0]
			n.consumed = n.consumed[1:]
			delete(n.consumedSet, oldest)
		}
		n.consumed = append(n.consumed, nonce)
		n.consumedSet[nonce] = struct{}{}
		return true
	}

	_, ok := n.consumedSet[nonce]
	return ok
}

// Len reports the number of outstanding (unmatched) nonces.
func (n *NonceSet) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Avatar is the authenticated identity bound to one session: the remote
// account, its token, and the session's home guild.
type Avatar struct {
	UserID        string
	Username      string
	Discriminator string
	Email         string
	Token         string
	HomeGuildID   string

	Nonces *NonceSet
}

// NewAvatar binds a validated profile and token to a fresh avatar. The
// home guild comes from the credential when given; otherwise it is
// filled in from the first available guild at READY time.
func NewAvatar(profile discord.Profile, token, homeGuildID string) *Avatar {
	return &Avatar{
		UserID:        profile.ID,
		Username:      profile.Username,
		Discriminator: profile.Discriminator,
		Email:         profile.Email,
		Token:         token,
		HomeGuildID:   homeGuildID,
		Nonces:        NewNonceSet(),
	}
}

// Hostmask renders the avatar's own wire source.
func (a *Avatar) Hostmask(server string) string {
	nick := SanitizeName(a.Username)
	return nick + "!" + nick + "#" + a.Discriminator + "@" + server
}
