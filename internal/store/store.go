package store

import (
	"sync"

	"github.com/bakkerme/newsreader/internal/core"
)

// State is the slice of application state driven by the data actions.
type State struct {
	Category *core.Category `json:"category,omitempty"`
	Article  *core.Article  `json:"article,omitempty"`
	Loading  bool           `json:"loading"`
	Failure  bool           `json:"failure"`
}

// Reduce applies action to state and returns the next state. It never mutates
// values reachable from its inputs.
func Reduce(state State, action core.Action) State {
	switch action.Type {
	case core.CategoryUpdatedType:
		state.Category = cloneCategory(action.Category)
	case core.CategoryFetchedType:
		if state.Category != nil {
			next := cloneCategory(state.Category)
			next.Items = append([]core.CategoryItem{}, action.Items...)
			state.Category = next
		}
	case core.ArticleUpdatedType:
		state.Article = cloneArticle(action.Article)
	case core.ArticleFetchedType:
		if state.Article != nil {
			next := cloneArticle(state.Article)
			next.HTML = action.HTML
			state.Article = next
		}
	case core.LoadingChangedType:
		state.Loading = action.Loading
	case core.FailureChangedType:
		state.Failure = action.Failure
	}
	return state
}

// Listener observes every dispatched action together with the state it produced.
type Listener func(state State, action core.Action)

// Store serialises dispatches, so it can be handed to a fetcher that reports
// from several goroutines. Listeners run under the store lock and must not
// dispatch.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

func New(initial State) *Store {
	return &Store{state: initial, listeners: map[int]Listener{}}
}

func (s *Store) Dispatch(action core.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, action)
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			l(s.state, action)
		}
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func cloneCategory(c *core.Category) *core.Category {
	if c == nil {
		return nil
	}
	next := *c
	return &next
}

func cloneArticle(a *core.Article) *core.Article {
	if a == nil {
		return nil
	}
	next := *a
	return &next
}
