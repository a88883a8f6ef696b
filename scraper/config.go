package scraper

import (
	"errors"
	"fmt"
	"net/url"
)

// Default selectors match the markup of the Cherry Network endeavour page.
const (
	DefaultContainerSelector   = ".jsx-3208942315"
	DefaultTitleSelector       = "div.text-2xl"
	DefaultDescriptionSelector = "div.text-base"
	DefaultDateSelector        = "div.text-lg"
	DefaultImageSelector       = "img"
	DefaultBaseURL             = "https://cherrynetwork.in"
)

// SelectorConfig defines how to extract events from a listing page. The
// container selector identifies each repeated event block; the field
// selectors are evaluated inside a single container.
type SelectorConfig struct {
	ContainerSelector   string `json:"container_selector" yaml:"container_selector"`
	TitleSelector       string `json:"title_selector" yaml:"title_selector"`
	DescriptionSelector string `json:"description_selector" yaml:"description_selector"`
	DateSelector        string `json:"date_selector" yaml:"date_selector"`
	ImageSelector       string `json:"image_selector,omitempty" yaml:"image_selector,omitempty"`

	// BaseURL is the origin relative image paths are resolved against.
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// DefaultSelectorConfig returns the selector set for the default source
// site.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		ContainerSelector:   DefaultContainerSelector,
		TitleSelector:       DefaultTitleSelector,
		DescriptionSelector: DefaultDescriptionSelector,
		DateSelector:        DefaultDateSelector,
		ImageSelector:       DefaultImageSelector,
		BaseURL:             DefaultBaseURL,
	}
}

// WithDefaults returns a copy of the config where every empty field is
// filled from DefaultSelectorConfig.
func (c SelectorConfig) WithDefaults() SelectorConfig {
	d := DefaultSelectorConfig()
	if c.ContainerSelector == "" {
		c.ContainerSelector = d.ContainerSelector
	}
	if c.TitleSelector == "" {
		c.TitleSelector = d.TitleSelector
	}
	if c.DescriptionSelector == "" {
		c.DescriptionSelector = d.DescriptionSelector
	}
	if c.DateSelector == "" {
		c.DateSelector = d.DateSelector
	}
	if c.ImageSelector == "" {
		c.ImageSelector = d.ImageSelector
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	return c
}

// Validate checks that every required selector is set and that the base
// URL is absolute.
func (c SelectorConfig) Validate() error {
	if c.ContainerSelector == "" {
		return errors.New("container_selector is required")
	}
	if c.TitleSelector == "" {
		return errors.New("title_selector is required")
	}
	if c.DescriptionSelector == "" {
		return errors.New("description_selector is required")
	}
	if c.DateSelector == "" {
		return errors.New("date_selector is required")
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https scheme")
	}

	return nil
}
