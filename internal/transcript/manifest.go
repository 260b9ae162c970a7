// Package transcript loads videos and their time-coded transcripts for
// batch indexing.
package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"vidrag/internal/domain"
)

// Manifest lists the videos to index.
//
//	videos:
//	  - id: dQw4w9WgXcQ
//	    title: Launch talk
//	    created: "2023-08-01T12:00:00Z"
//	    transcript: transcripts/dQw4w9WgXcQ.json
type Manifest struct {
	Videos []Entry `yaml:"videos"`
}

// Entry describes one video. Transcript is resolved relative to the
// manifest file.
type Entry struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	Created    string `yaml:"created"`
	Transcript string `yaml:"transcript"`
	Window     int    `yaml:"window,omitempty"`
}

// LoadManifest reads a manifest and every transcript it references.
func LoadManifest(path string) ([]domain.Video, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Videos) == 0 {
		return nil, fmt.Errorf("manifest %s lists no videos", path)
	}

	dir := filepath.Dir(path)
	seen := make(map[string]bool, len(m.Videos))
	videos := make([]domain.Video, 0, len(m.Videos))
	var errs []error
	for i, e := range m.Videos {
		if strings.TrimSpace(e.ID) == "" {
			errs = append(errs, fmt.Errorf("video %d: missing id", i))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("video %s: listed twice", e.ID))
			continue
		}
		seen[e.ID] = true
		if e.Transcript == "" {
			errs = append(errs, fmt.Errorf("video %s: missing transcript path", e.ID))
			continue
		}
		tp := e.Transcript
		if !filepath.IsAbs(tp) {
			tp = filepath.Join(dir, tp)
		}
		lines, err := ReadFile(tp)
		if err != nil {
			errs = append(errs, fmt.Errorf("video %s: %w", e.ID, err))
			continue
		}
		videos = append(videos, domain.Video{
			ID:      e.ID,
			Title:   e.Title,
			Created: e.Created,
			Window:  e.Window,
			Lines:   lines,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return videos, nil
}
