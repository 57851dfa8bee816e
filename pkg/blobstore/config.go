package blobstore

import (
	"fmt"
	"strings"

	"github.com/trigg3rX/labelmarket-backend/pkg/env"
)

type Config struct {
	PublisherURL  string
	AggregatorURL string
	// Epochs is the retention period requested for stored blobs
	Epochs   int
	MaxBytes int
}

func NewConfig(publisherURL, aggregatorURL string, epochs int) *Config {
	return &Config{
		PublisherURL:  strings.TrimRight(publisherURL, "/"),
		AggregatorURL: strings.TrimRight(aggregatorURL, "/"),
		Epochs:        epochs,
		MaxBytes:      DefaultMaxBytes,
	}
}

func (c *Config) Validate() error {
	if !env.IsValidURL(c.PublisherURL) {
		return fmt.Errorf("PublisherURL is required")
	}
	if !env.IsValidURL(c.AggregatorURL) {
		return fmt.Errorf("AggregatorURL is required")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("Epochs must be positive")
	}
	if c.MaxBytes < 0 {
		return fmt.Errorf("MaxBytes must be >= 0")
	}
	return nil
}
