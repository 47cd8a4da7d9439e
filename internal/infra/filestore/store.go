// Package filestore keeps channel settings in a YAML file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"youtrack_notification_bot/internal/domain/channel"

	"gopkg.in/yaml.v3"
)

const rootKey = "channels"

// YAMLStore persists the flat channel form as an ordered mapping under the
// "channels" key:
//
//	channels:
//	  support.name: Support
//	  support.query: project: SUP
//	  support.tracking: polling
type YAMLStore struct {
	path string
}

func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Load returns no channels when the file does not exist yet.
func (s *YAMLStore) Load(_ context.Context) ([]*channel.Channel, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: expected a mapping at the top level", s.path)
	}

	var settings *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == rootKey {
			settings = root.Content[i+1]
			break
		}
	}
	if settings == nil || settings.Tag == "!!null" {
		return nil, nil
	}
	if settings.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: %q must be a mapping", s.path, rootKey)
	}

	entries := make([]channel.Entry, 0, len(settings.Content)/2)
	for i := 0; i+1 < len(settings.Content); i += 2 {
		k, v := settings.Content[i], settings.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%s line %d: value of %q must be a scalar", s.path, v.Line, k.Value)
		}
		entries = append(entries, channel.Entry{Key: k.Value, Value: v.Value})
	}

	channels, err := channel.Unflatten(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return channels, nil
}

// Save writes to a temporary file and renames it over the target.
func (s *YAMLStore) Save(_ context.Context, channels []*channel.Channel) error {
	settings := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range channel.Flatten(channels) {
		settings.Content = append(settings.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Value},
		)
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Tag: "!!str", Value: rootKey},
		settings,
	}}

	data, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode channels: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

func (s *YAMLStore) Close() error { return nil }
