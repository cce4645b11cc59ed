package feed

import "github.com/lysyi3m/clubfeed/app/stream"

// Stream sources
const (
	SourceREST  = "rest"
	SourceRSS   = "rss"
	SourceSaved = "saved"
)

// Configuration types

type Config struct {
	Name      string         // Derived from filename (without .yml extension); used as stream kind
	Source    string         `yaml:"source"`
	Path      string         `yaml:"path"`       // rest: listing endpoint
	ListField string         `yaml:"list_field"` // rest: gjson path of the item array in the payload
	URL       string         `yaml:"url"`        // rss: feed URL, "{owner}" is replaced by the stream owner
	Actions   ConfigActions  `yaml:"actions"`
	Settings  ConfigSettings `yaml:"settings"`
}

// ConfigActions routes item mutations to backend endpoints.
type ConfigActions struct {
	LikeType string            `yaml:"like_type"` // subject type sent with likes: post, comment
	Delete   string            `yaml:"delete"`    // delete endpoint
	Remove   map[string]string `yaml:"remove"`    // further confirmed actions that drop the item, name -> endpoint
}

type ConfigSettings struct {
	Enabled     bool `yaml:"enabled"`
	PageSize    int  `yaml:"page_size"`
	FirstPage   int  `yaml:"first_page"`
	Timeout     int  `yaml:"timeout"` // seconds
	RetryFailed bool `yaml:"retry_failed"`
}

// ActionPath returns the endpoint of a remove-style action, delete included.
func (c *Config) ActionPath(action string) (string, bool) {
	if action == stream.ActionDelete {
		return c.Actions.Delete, c.Actions.Delete != ""
	}
	path, ok := c.Actions.Remove[action]
	return path, ok && path != ""
}
