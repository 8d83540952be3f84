package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/fskv/dynimport"
	"github.com/jacentio/fskv/store"
)

// fileConfig is the YAML configuration file layout.
//
//	root: /var/lib/fskv
//	create: true
//	marker: .fskv
//	tree_height: 3
//	segment_width: 4
//	log_level: info
//	dynamodb:
//	  profile: default
//	  region: eu-west-1
type fileConfig struct {
	Root         string  `yaml:"root"`
	Create       *bool   `yaml:"create"`
	Marker       *string `yaml:"marker"`
	TreeHeight   int     `yaml:"tree_height"`
	SegmentWidth int     `yaml:"segment_width"`
	LogLevel     string  `yaml:"log_level"`
	DynamoDB     struct {
		Profile  string `yaml:"profile"`
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"dynamodb"`
}

// loadFileConfig reads path. Unknown fields are rejected.
func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// storeConfig applies the file settings over store defaults.
func (f fileConfig) storeConfig() store.Config {
	cfg := store.DefaultConfig()
	if f.Create != nil {
		cfg.Create = *f.Create
	}
	if f.Marker != nil {
		cfg.Marker = *f.Marker
	}
	if f.TreeHeight != 0 {
		cfg.TreeHeight = f.TreeHeight
	}
	if f.SegmentWidth != 0 {
		cfg.SegmentWidth = f.SegmentWidth
	}
	return cfg
}

// clientOptions returns the DynamoDB client settings from the file.
func (f fileConfig) clientOptions() dynimport.ClientOptions {
	return dynimport.ClientOptions{
		Profile:  f.DynamoDB.Profile,
		Region:   f.DynamoDB.Region,
		Endpoint: f.DynamoDB.Endpoint,
	}
}
