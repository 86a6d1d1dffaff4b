package realtime

import "sync"

type session struct {
	client      *Client
	userID      int64
	activeMatch int64
}

// Registry tracks the authenticated connections of this process.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*session
	users map[int64]map[string]*session
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*session),
		users: make(map[int64]map[string]*session),
	}
}

func (r *Registry) Add(userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &session{client: c, userID: userID}
	r.conns[c.ID()] = s
	byConn := r.users[userID]
	if byConn == nil {
		byConn = make(map[string]*session)
		r.users[userID] = byConn
	}
	byConn[c.ID()] = s
}

// Remove forgets the connection and returns the user it belonged to.
func (r *Registry) Remove(connID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.conns[connID]
	if !ok {
		return 0, false
	}
	delete(r.conns, connID)
	if byConn := r.users[s.userID]; byConn != nil {
		delete(byConn, connID)
		if len(byConn) == 0 {
			delete(r.users, s.userID)
		}
	}
	return s.userID, true
}

// SetActiveMatch records the conversation the connection has open; 0 clears it.
func (r *Registry) SetActiveMatch(connID string, matchID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.conns[connID]
	if !ok {
		return false
	}
	s.activeMatch = matchID
	return true
}

func (r *Registry) ClientsFor(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.users[userID]))
	for _, s := range r.users[userID] {
		out = append(out, s.client)
	}
	return out
}

// Viewing reports whether any connection of userID has matchID open.
func (r *Registry) Viewing(userID, matchID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.users[userID] {
		if s.activeMatch == matchID {
			return true
		}
	}
	return false
}

func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Deliver hands env to every local connection of userID. Typing hints are dropped for
// connections whose queue is full; anything else closes them.
func (r *Registry) Deliver(userID int64, env Envelope) int {
	delivered := 0
	for _, c := range r.ClientsFor(userID) {
		var ok bool
		if isHint(env.Type) {
			ok = c.TrySend(env)
		} else {
			ok = c.Send(env)
		}
		if ok {
			delivered++
		}
	}
	return delivered
}

func isHint(eventType string) bool {
	return eventType == EventTyping || eventType == EventStopTyping
}
