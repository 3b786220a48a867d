package schema

import "fmt"

// GenerationResult is one channel's output within a generation.
type GenerationResult struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Style     string `json:"style"`
	Language  string `json:"language"`
	Text      string `json:"text"`
	Model     string `json:"model"`
}

// Generation is the AI output produced from one day's items.
type Generation struct {
	ID        string  `json:"id" db:"id"`
	Date      string  `json:"date" db:"date"`
	Results   Results `json:"results" db:"results"`
	CreatedAt string  `json:"created_at" db:"created_at"`
}

// Validate checks the fields every cached generation must have.
func (g *Generation) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !ValidDate(g.Date) {
		return fmt.Errorf("date must be yyyy-MM-dd (got %q)", g.Date)
	}
	return nil
}

// GenerateRequest asks the server to generate posts for a day.
type GenerateRequest struct {
	Date             string   `json:"date"`
	Channels         []string `json:"channels,omitempty"`
	StyleOverride    string   `json:"style_override,omitempty"`
	LanguageOverride string   `json:"language_override,omitempty"`
}

// DaySummary is a row of the day history list.
type DaySummary struct {
	Date            string `json:"date" db:"date"`
	InputCount      int    `json:"input_count" db:"input_count"`
	GenerationCount int    `json:"generation_count" db:"generation_count"`
}

// DayList is a page of day summaries.
type DayList struct {
	Items  []DaySummary `json:"items"`
	Cursor *string      `json:"cursor,omitempty"`
}

// DayResponse is the full content of one day.
type DayResponse struct {
	Date        string       `json:"date"`
	InputItems  []Item       `json:"input_items"`
	Generations []Generation `json:"generations"`
}

// ChannelSetting holds a channel's generation defaults.
type ChannelSetting struct {
	ChannelID       string `json:"channel_id" db:"channel_id"`
	IsActive        bool   `json:"is_active" db:"is_active"`
	DefaultStyle    string `json:"default_style" db:"default_style"`
	DefaultLanguage string `json:"default_language" db:"default_language"`
	DefaultLength   string `json:"default_length" db:"default_length"`
}

// GenerationSettings holds account-wide generation preferences.
type GenerationSettings struct {
	DefaultStyle    string `json:"default_style"`
	DefaultLanguage string `json:"default_language"`
	DefaultLength   string `json:"default_length"`
	Instructions    string `json:"instructions,omitempty"`
}

// PublishedPost is a post on the public blog.
type PublishedPost struct {
	ID                string     `json:"id" db:"id"`
	Slug              string     `json:"slug" db:"slug"`
	ChannelID         string     `json:"channel_id,omitempty" db:"channel_id"`
	Style             string     `json:"style,omitempty" db:"style"`
	Language          string     `json:"language,omitempty" db:"language"`
	Text              string     `json:"text" db:"text"`
	Date              string     `json:"date" db:"date"`
	PublishedAt       string     `json:"published_at" db:"published_at"`
	InputItemsPreview StringList `json:"input_items_preview" db:"input_items_preview"`
	Source            *string    `json:"source,omitempty" db:"source"`
}

// PostList is a page of public posts.
type PostList struct {
	Posts  []PublishedPost `json:"posts"`
	Cursor *string         `json:"cursor,omitempty"`
}

// PostQuery selects a page of public posts.
type PostQuery struct {
	Cursor  string
	Limit   int
	Channel string
}

// FirstPage reports whether q asks for the newest page.
func (q PostQuery) FirstPage() bool {
	return q.Cursor == ""
}

// Export is a rendered export of one day.
type Export struct {
	Date    string `json:"date"`
	Format  string `json:"format"`
	Content string `json:"content"`
}
