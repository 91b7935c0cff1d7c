package hxclient

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by DefaultSettings.
const (
	DefaultRequestTimeout    = 60 * time.Second
	DefaultProcessingTimeout = 60 * time.Second
	DefaultPageID            = "-1"
	DefaultURLPrefix         = "/"
)

// ParamNames are the URL parameter keys of the identity parameters and the
// cache-busting timestamp.
type ParamNames struct {
	Component         string `yaml:"componentId"`
	Page              string `yaml:"pageId"`
	Form              string `yaml:"formId"`
	ListenerInterface string `yaml:"listenerInterface"`
	BehaviorIndex     string `yaml:"behaviorIndex"`
	Timestamp         string `yaml:"timestamp"`
}

// DefaultParamNames returns the parameter keys used unless configured
// otherwise.
func DefaultParamNames() ParamNames {
	return ParamNames{
		Component:         "componentId",
		Page:              "pageId",
		Form:              "formId",
		ListenerInterface: "listenerInterface",
		BehaviorIndex:     "behaviorIndex",
		Timestamp:         "random",
	}
}

// Settings holds the client-wide defaults every item is resolved against.
//
// The callback lists run before the item's own callbacks of the same kind.
// DefaultSettings installs DefaultPrecondition and a timestamp argument
// method; replace the slices to opt out.
type Settings struct {
	RequestTimeout    time.Duration
	ProcessingTimeout time.Duration
	PageID            string
	Token             string
	RemovePrevious    bool

	// URLPrefix is the path every request URL starts with.
	URLPrefix string
	Params    ParamNames

	Preconditions      []Precondition
	BeforeHandlers     []BeforeHandler
	SuccessHandlers    []SuccessHandler
	ErrorHandlers      []ErrorHandler
	URLArgumentMethods []URLArgumentMethod
}

// DefaultSettings returns settings with the stock defaults.
func DefaultSettings() *Settings {
	s := &Settings{
		RequestTimeout:    DefaultRequestTimeout,
		ProcessingTimeout: DefaultProcessingTimeout,
		PageID:            DefaultPageID,
		URLPrefix:         DefaultURLPrefix,
		Params:            DefaultParamNames(),
		Preconditions:     []Precondition{DefaultPrecondition},
	}
	s.URLArgumentMethods = []URLArgumentMethod{TimestampArgument(s)}
	return s
}

// TimestampArgument returns a URL argument method adding a cache-busting
// value under s.Params.Timestamp: a per-settings request counter followed by
// a random number.
func TimestampArgument(s *Settings) URLArgumentMethod {
	var count atomic.Int64
	return func(*Item) URLArguments {
		n := count.Add(1) - 1
		stamp := strconv.FormatInt(n, 10) + strconv.Itoa(rand.Intn(10000)+1)
		return URLArguments{s.Params.Timestamp: stamp}
	}
}

// settingsFile is the YAML shape of a settings file. Timeouts are integer
// milliseconds; absent keys keep their current value.
type settingsFile struct {
	RequestTimeout    *int64  `yaml:"requestTimeout"`
	ProcessingTimeout *int64  `yaml:"processingTimeout"`
	PageID            *string `yaml:"pageId"`
	Token             *string `yaml:"token"`
	RemovePrevious    *bool   `yaml:"removePrevious"`
	URLPrefix         *string `yaml:"urlPrefix"`
	Params            struct {
		Component         *string `yaml:"componentId"`
		Page              *string `yaml:"pageId"`
		Form              *string `yaml:"formId"`
		ListenerInterface *string `yaml:"listenerInterface"`
		BehaviorIndex     *string `yaml:"behaviorIndex"`
		Timestamp         *string `yaml:"timestamp"`
	} `yaml:"params"`
}

// LoadSettings reads a YAML settings file over DefaultSettings.
//
//	requestTimeout: 30000
//	processingTimeout: 5000
//	urlPrefix: /ajax
//	params:
//	  componentId: c
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hxclient: read settings: %w", err)
	}
	s := DefaultSettings()
	if err := s.Overlay(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Overlay applies the keys present in a YAML document to s.
func (s *Settings) Overlay(data []byte) error {
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("hxclient: parse settings: %w", err)
	}

	if f.RequestTimeout != nil {
		if *f.RequestTimeout < 0 {
			return fmt.Errorf("%w: negative requestTimeout %d", ErrInvalidConfig, *f.RequestTimeout)
		}
		s.RequestTimeout = time.Duration(*f.RequestTimeout) * time.Millisecond
	}
	if f.ProcessingTimeout != nil {
		if *f.ProcessingTimeout < 0 {
			return fmt.Errorf("%w: negative processingTimeout %d", ErrInvalidConfig, *f.ProcessingTimeout)
		}
		s.ProcessingTimeout = time.Duration(*f.ProcessingTimeout) * time.Millisecond
	}
	setString(&s.PageID, f.PageID)
	setString(&s.Token, f.Token)
	setString(&s.URLPrefix, f.URLPrefix)
	if f.RemovePrevious != nil {
		s.RemovePrevious = *f.RemovePrevious
	}

	setString(&s.Params.Component, f.Params.Component)
	setString(&s.Params.Page, f.Params.Page)
	setString(&s.Params.Form, f.Params.Form)
	setString(&s.Params.ListenerInterface, f.Params.ListenerInterface)
	setString(&s.Params.BehaviorIndex, f.Params.BehaviorIndex)
	setString(&s.Params.Timestamp, f.Params.Timestamp)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
