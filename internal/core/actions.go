package core

// ActionType tags an Action. The values match the wire names consumed by the
// front-end reducer.
type ActionType string

const (
	CategoryUpdatedType ActionType = "CATEGORY_UPDATED"
	ArticleUpdatedType  ActionType = "ARTICLE_UPDATED"
	FailureChangedType  ActionType = "FAILURE_CHANGED"
	LoadingChangedType  ActionType = "LOADING_CHANGED"
	ArticleFetchedType  ActionType = "ARTICLE_FETCHED"
	CategoryFetchedType ActionType = "CATEGORY_FETCHED"
)

// Action is a state transition emitted to a Dispatcher. Only the fields that
// belong to Type are meaningful.
type Action struct {
	Type     ActionType     `json:"type"`
	Loading  bool           `json:"loading,omitempty"`
	Failure  bool           `json:"failure,omitempty"`
	Category *Category      `json:"category,omitempty"`
	Article  *Article       `json:"article,omitempty"`
	Items    []CategoryItem `json:"items,omitempty"`
	HTML     string         `json:"html,omitempty"`
}

// Dispatcher receives actions. Implementations are expected to serialise
// concurrent calls; the fetcher dispatches from timer and HTTP goroutines.
type Dispatcher interface {
	Dispatch(action Action)
}

// DispatchFunc adapts a plain function to Dispatcher.
type DispatchFunc func(Action)

func (f DispatchFunc) Dispatch(action Action) {
	if f != nil {
		f(action)
	}
}

func LoadingChanged(loading bool) Action {
	return Action{Type: LoadingChangedType, Loading: loading}
}

func FailureChanged(failure bool) Action {
	return Action{Type: FailureChangedType, Failure: failure}
}

func CategoryUpdated(category *Category) Action {
	return Action{Type: CategoryUpdatedType, Category: category}
}

func ArticleUpdated(article *Article) Action {
	return Action{Type: ArticleUpdatedType, Article: article}
}

func CategoryFetched(items []CategoryItem) Action {
	return Action{Type: CategoryFetchedType, Items: items}
}

func ArticleFetched(html string) Action {
	return Action{Type: ArticleFetchedType, HTML: html}
}
