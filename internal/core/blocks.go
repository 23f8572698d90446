package core

// Category is a named listing of articles. Items is nil until the listing has
// been fetched at least once; a non-nil Items doubles as the offline cache.
type Category struct {
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	// Feed optionally points the category at an RSS/Atom feed instead of data/{name}.json.
	Feed  string         `json:"feed,omitempty" yaml:"feed,omitempty"`
	Items []CategoryItem `json:"items,omitempty" yaml:"-"`
}

// Article identifies a single article body. HTML is empty until fetched.
type Article struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	HTML     string `json:"html,omitempty" yaml:"-"`
}

// CategoryItem is the view model for one article in a category listing.
type CategoryItem struct {
	Headline    string  `json:"headline"`
	Href        *string `json:"href"`
	ID          string  `json:"id,omitempty"`
	ImageURL    string  `json:"imageUrl"`
	Placeholder string  `json:"placeholder,omitempty"`
	Category    string  `json:"category,omitempty"`
	TimeAgo     string  `json:"timeAgo"`
	Author      string  `json:"author,omitempty"`
	Summary     string  `json:"summary"`
	ReadTime    string  `json:"readTime"`
}
