package server

import (
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/editor"
)

const maxEditorSessions = 256

var (
	errEditorSessionNotFound = errors.New("editor session not found")
	errEditorSessionLimit    = errors.New("editor session limit reached")
)

// editorSession owns one document. Every access to the document and to the
// saved template id holds mu. saveMu serializes saves without blocking edits.
type editorSession struct {
	id       string
	ownerID  string
	openedAt time.Time

	unsubscribe func()
	saveMu      sync.Mutex

	mu         sync.Mutex
	document   *editor.Document
	templateID string
}

func (s *editorSession) with(fn func(document *editor.Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.document)
}

type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*editorSession
	ids      cards.IDProvider
}

func newSessionRegistry(ids cards.IDProvider) *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*editorSession), ids: ids}
}

// open registers the document. watch runs before the session becomes visible and
// returns the function that detaches it again.
func (r *sessionRegistry) open(ownerID string, document *editor.Document, watch func(sessionID string) func()) (*editorSession, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= maxEditorSessions {
		return nil, errEditorSessionLimit
	}
	session := &editorSession{id: id, ownerID: ownerID, openedAt: time.Now().UTC(), document: document}
	if watch != nil {
		session.unsubscribe = watch(id)
	}
	r.sessions[id] = session
	return session, nil
}

// get returns the session when it exists and belongs to the owner.
func (r *sessionRegistry) get(id, ownerID string) (*editorSession, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || session.ownerID != ownerID {
		return nil, errEditorSessionNotFound
	}
	return session, nil
}

func (r *sessionRegistry) close(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok && session.unsubscribe != nil {
		session.unsubscribe()
	}
}
