package podcastindex

// Metadata is the subset of Podcast Index feed fields the bot uses
type Metadata struct {
	ID             int64             `json:"id"`
	Title          string            `json:"title"`
	URL            string            `json:"url"`
	OriginalURL    string            `json:"originalUrl"`
	Link           string            `json:"link"`
	Author         string            `json:"author"`
	Image          string            `json:"image"`
	LastUpdateTime int64             `json:"lastUpdateTime"`
	ITunesID       int64             `json:"itunesId"`
	Language       string            `json:"language"`
	Categories     map[string]string `json:"categories"`
}

// DisplayName returns the feed title, or a placeholder for feeds the
// index knows nothing about.
func (m *Metadata) DisplayName() string {
	if m == nil || m.Title == "" {
		return "Unknown Podcast"
	}
	return m.Title
}
