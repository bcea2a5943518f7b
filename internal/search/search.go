package search

// Result is a single place hit returned to the caller. Results come from
// the place index (or the Postgres fallback) and carry enough for the
// client to either open the place or feed it back as a resolve candidate.
type Result struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Address    string  `json:"address,omitempty"`
	Provider   string  `json:"provider,omitempty"`
	ExternalID string  `json:"externalId,omitempty"`
}

// Query describes a place search request.
type Query struct {
	Text  string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a place search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push places into a search index.
type Indexer interface {
	IndexPlace(place Result) error
}
