// Package catalog loads the story catalog from YAML.
package catalog

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/storybox/internal/domain/story"
)

// ErrEmptyCatalog is returned when a catalog has no groups.
var ErrEmptyCatalog = errors.New("catalog has no groups")

// DefaultPageDuration applies to pages without a duration.
const DefaultPageDuration = 5 * time.Second

// document is the YAML file layout.
type document struct {
	Groups []groupSpec `yaml:"groups" validate:"dive"`
}

type groupSpec struct {
	ID     string     `yaml:"id" validate:"required"`
	Title  string     `yaml:"title"`
	Avatar string     `yaml:"avatar"`
	Pages  []pageSpec `yaml:"pages" validate:"dive"`
}

type pageSpec struct {
	ID       string         `yaml:"id" validate:"required"`
	Title    string         `yaml:"title"`
	Subtitle string         `yaml:"subtitle"`
	Duration string         `yaml:"duration"`
	Media    map[string]any `yaml:"media" validate:"required"`
	Button   *buttonSpec    `yaml:"button"`
}

type buttonSpec struct {
	Title  string `yaml:"title" validate:"required"`
	Action string `yaml:"action" validate:"oneof=next close link"`
	URL    string `yaml:"url" validate:"omitempty,url"`
}

// normalize fills in button defaults: a button with a URL and no action is a link.
func (d *document) normalize() {
	for gi := range d.Groups {
		for pi := range d.Groups[gi].Pages {
			if b := d.Groups[gi].Pages[pi].Button; b != nil && b.Action == "" {
				if b.URL != "" {
					b.Action = string(story.ActionLink)
				} else {
					b.Action = string(story.ActionNext)
				}
			}
		}
	}
}

// mediaSettings is decoded from a page's media block.
// A bare string is not accepted; kind defaults to image.
type mediaSettings struct {
	Kind        string `mapstructure:"kind" default:"image" validate:"oneof=image video"`
	URL         string `mapstructure:"url" validate:"required"`
	Placeholder string `mapstructure:"placeholder"`
}

// Options controls catalog loading.
type Options struct {
	DefaultPageDuration time.Duration
}

// Load reads and parses a catalog file.
func Load(path string, opts Options) ([]story.Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog file")
	}
	groups, err := Parse(data, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return groups, nil
}

// Parse parses and validates a catalog.
func Parse(data []byte, opts Options) ([]story.Group, error) {
	if opts.DefaultPageDuration <= 0 {
		opts.DefaultPageDuration = DefaultPageDuration
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}
	if len(doc.Groups) == 0 {
		return nil, ErrEmptyCatalog
	}
	doc.normalize()
	if err := validator.New().Struct(doc); err != nil {
		return nil, errors.Wrap(err, "catalog validation failed")
	}

	groups := make([]story.Group, 0, len(doc.Groups))
	groupIDs := make(map[string]bool, len(doc.Groups))
	for gi, gs := range doc.Groups {
		if groupIDs[gs.ID] {
			return nil, errors.Newf("duplicate group id %q (group index %d)", gs.ID, gi)
		}
		groupIDs[gs.ID] = true

		g, err := buildGroup(gs, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "group %q", gs.ID)
		}
		if g.IsEmpty() {
			zlog.Warn().Msgf("catalog group has no pages and will be skipped by the player: group=%s", g.ID)
		}
		groups = append(groups, g)
	}

	zlog.Debug().Msgf("catalog parsed: groups=%d", len(groups))
	return groups, nil
}

func buildGroup(gs groupSpec, opts Options) (story.Group, error) {
	g := story.Group{
		ID:        gs.ID,
		Title:     gs.Title,
		AvatarURL: gs.Avatar,
		Pages:     make([]story.Page, 0, len(gs.Pages)),
	}

	pageIDs := make(map[string]bool, len(gs.Pages))
	for _, ps := range gs.Pages {
		if pageIDs[ps.ID] {
			return g, errors.Newf("duplicate page id %q", ps.ID)
		}
		pageIDs[ps.ID] = true

		p, err := buildPage(ps, opts)
		if err != nil {
			return g, errors.Wrapf(err, "page %q", ps.ID)
		}
		g.Pages = append(g.Pages, p)
	}
	return g, nil
}

func buildPage(ps pageSpec, opts Options) (story.Page, error) {
	media, err := decodeMedia(ps.Media)
	if err != nil {
		return story.Page{}, err
	}

	duration := opts.DefaultPageDuration
	if ps.Duration != "" {
		d, err := time.ParseDuration(ps.Duration)
		if err != nil {
			return story.Page{}, errors.Wrap(err, "invalid duration")
		}
		if d <= 0 {
			return story.Page{}, errors.Newf("duration must be positive: %s", ps.Duration)
		}
		duration = d
	}

	p := story.Page{
		ID:       ps.ID,
		Title:    ps.Title,
		Subtitle: ps.Subtitle,
		Media:    media,
		Duration: duration,
	}
	if b := ps.Button; b != nil {
		if b.Action == string(story.ActionLink) && b.URL == "" {
			return story.Page{}, errors.New("link button requires url")
		}
		p.Button = &story.Button{
			Title:  b.Title,
			Action: story.ActionType(b.Action),
			URL:    b.URL,
		}
	}
	return p, nil
}

func decodeMedia(settings map[string]any) (story.Media, error) {
	var ms mediaSettings
	if err := mapstructure.Decode(settings, &ms); err != nil {
		return story.Media{}, errors.Wrap(err, "failed to decode media")
	}
	if err := defaults.Set(&ms); err != nil {
		return story.Media{}, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(ms); err != nil {
		return story.Media{}, errors.Wrap(err, "media validation failed")
	}
	return story.Media{
		Kind:        story.MediaKind(ms.Kind),
		URL:         ms.URL,
		Placeholder: ms.Placeholder,
	}, nil
}
