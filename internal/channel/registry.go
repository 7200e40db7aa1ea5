// Package channel manages the on-disk channel registry. Each channel is a
// directory under the registry root holding config.yaml and, once researched,
// brand_guide.yaml. Directories whose names start with an underscore are
// reserved (the _template directory is copied into new channels).
package channel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

const (
	settingsFile = "config.yaml"
	// BrandGuideFile holds a channel's researched brand guide.
	BrandGuideFile = "brand_guide.yaml"
	templateDir    = "_template"
)

var (
	ErrNotFound  = errors.New("channel not found")
	ErrExists    = errors.New("channel already exists")
	ErrInvalidID = errors.New("invalid channel id")
	ErrNoChanges = errors.New("no fields to update")
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID rejects identifiers that could escape the registry root.
func ValidateID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Registry reads and writes channel directories. Nothing is cached: other
// processes (the CLI, other API instances) edit the same directory, so every
// lookup reads the files.
type Registry struct {
	root string
}

// NewRegistry returns a registry rooted at dir. The directory does not need to
// exist until a channel is created.
func NewRegistry(dir string) *Registry {
	return &Registry{root: dir}
}

// Root returns the registry directory.
func (r *Registry) Root() string { return r.root }

// List returns the IDs of all visible channels in lexical order.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read channels dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), "_") {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Registry) path(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	if strings.HasPrefix(id, "_") {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p := filepath.Join(r.root, id)
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Resolve returns the settings of a channel, or ErrNotFound.
func (r *Registry) Resolve(id string) (*model.ChannelSettings, error) {
	dir, err := r.path(id)
	if err != nil {
		return nil, err
	}
	var s model.ChannelSettings
	if err := readYAML(filepath.Join(dir, settingsFile), &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrNotFound, id, settingsFile)
		}
		return nil, err
	}
	if s.Channel.Language == "" {
		s.Channel.Language = "ko"
	}

	return &s, nil
}

// Info returns the API view of a channel.
func (r *Registry) Info(id string) (*model.ChannelInfo, error) {
	s, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	return &model.ChannelInfo{
		ChannelID:     id,
		Name:          s.Channel.Name,
		Category:      s.Channel.Category,
		Language:      s.Channel.Language,
		Description:   s.Channel.Description,
		HasBrandGuide: r.HasBrandGuide(id),
	}, nil
}

// ChannelUpdate lists the profile fields to change. Nil fields are kept.
type ChannelUpdate struct {
	Name             *string `json:"name"`
	Category         *string `json:"category"`
	Language         *string `json:"language"`
	Description      *string `json:"description"`
	YouTubeChannelID *string `json:"youtube_channel_id"`
}

// Empty reports whether the update changes nothing.
func (u ChannelUpdate) Empty() bool {
	return u.Name == nil && u.Category == nil && u.Language == nil &&
		u.Description == nil && u.YouTubeChannelID == nil
}

func (u ChannelUpdate) apply(p *model.ChannelProfile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Language != nil {
		p.Language = *u.Language
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.YouTubeChannelID != nil {
		p.YouTubeChannelID = *u.YouTubeChannelID
	}
}

// Create makes a new channel directory, copying every YAML file from
// _template when present, then applies the given profile fields.
func (r *Registry) Create(id string, profile ChannelUpdate) (*model.ChannelInfo, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if strings.HasPrefix(id, "_") {
		return nil, fmt.Errorf("%w: ids starting with '_' are reserved", ErrInvalidID)
	}
	dir := filepath.Join(r.root, id)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0755); err != nil {
		return nil, fmt.Errorf("create channel dir: %w", err)
	}

	tmpl, err := filepath.Glob(filepath.Join(r.root, templateDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob template: %w", err)
	}
	for _, src := range tmpl {
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filepath.Base(src), err)
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(src)), b, 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", filepath.Base(src), err)
		}
	}

	var s model.ChannelSettings
	if err := readYAML(filepath.Join(dir, settingsFile), &s); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	profile.apply(&s.Channel)
	if s.Channel.Name == "" {
		s.Channel.Name = id
	}
	if s.Channel.Language == "" {
		s.Channel.Language = "ko"
	}
	if err := writeYAML(filepath.Join(dir, settingsFile), &s); err != nil {
		return nil, err
	}
	return r.Info(id)
}

// Update changes profile fields in config.yaml. An empty update is rejected
// with ErrNoChanges.
func (r *Registry) Update(id string, u ChannelUpdate) (*model.ChannelInfo, error) {
	dir, err := r.path(id)
	if err != nil {
		return nil, err
	}
	if u.Empty() {
		return nil, ErrNoChanges
	}

	var s model.ChannelSettings
	if err := readYAML(filepath.Join(dir, settingsFile), &s); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	u.apply(&s.Channel)
	if err := writeYAML(filepath.Join(dir, settingsFile), &s); err != nil {
		return nil, err
	}
	return r.Info(id)
}

// Delete removes the channel directory and everything in it.
func (r *Registry) Delete(id string) error {
	dir, err := r.path(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove channel dir: %w", err)
	}
	return nil
}

// HasBrandGuide reports whether the channel has a brand_guide.yaml.
func (r *Registry) HasBrandGuide(id string) bool {
	dir, err := r.path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, BrandGuideFile))
	return err == nil
}

// LoadBrandGuide returns the stored brand guide, or ErrNotFound when the
// channel has none.
func (r *Registry) LoadBrandGuide(id string) (*model.BrandGuide, error) {
	dir, err := r.path(id)
	if err != nil {
		return nil, err
	}
	var g model.BrandGuide
	if err := readYAML(filepath.Join(dir, BrandGuideFile), &g); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no brand guide", ErrNotFound, id)
		}
		return nil, err
	}

	return &g, nil
}

// SaveBrandGuide writes brand_guide.yaml into the channel directory.
func (r *Registry) SaveBrandGuide(id string, g *model.BrandGuide) error {
	dir, err := r.path(id)
	if err != nil {
		return err
	}
	return writeYAML(filepath.Join(dir, BrandGuideFile), g)
}

func readYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
