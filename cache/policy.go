package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTTL        = 30 * time.Minute
	defaultMaxEntries = 5
)

// ErrInvalidPolicy is returned for negative bounds.
var ErrInvalidPolicy = errors.New("invalid cache policy")

// Policy bounds a cache. A zero TTL disables expiry and a zero MaxEntries
// disables the capacity bound.
//
// In JSON and YAML the TTL is written as a duration string ("30m") or as a
// number of seconds (1800).
type Policy struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultPolicy returns a policy of 30 minutes and 5 entries.
func DefaultPolicy() Policy {
	return Policy{TTL: defaultTTL, MaxEntries: defaultMaxEntries}
}

// Validate rejects negative bounds.
func (p Policy) Validate() error {
	if p.TTL < 0 {
		return fmt.Errorf("%w: negative ttl %s", ErrInvalidPolicy, p.TTL)
	}
	if p.MaxEntries < 0 {
		return fmt.Errorf("%w: negative max entries %d", ErrInvalidPolicy, p.MaxEntries)
	}
	return nil
}

// Merge applies non-zero values from source into p.
func (p *Policy) Merge(source *Policy) {
	if source.TTL != 0 {
		p.TTL = source.TTL
	}
	if source.MaxEntries != 0 {
		p.MaxEntries = source.MaxEntries
	}
}

func (p Policy) String() string {
	return fmt.Sprintf("ttl=%s max_entries=%d", p.TTL, p.MaxEntries)
}

type policyDoc struct {
	TTL        any `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

func (p Policy) MarshalJSON() ([]byte, error) {
	doc := policyDoc{MaxEntries: p.MaxEntries}
	if p.TTL != 0 {
		doc.TTL = p.TTL.String()
	}
	return json.Marshal(doc)
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	var doc policyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return p.fromDoc(doc)
}

func (p Policy) MarshalYAML() (any, error) {
	doc := policyDoc{MaxEntries: p.MaxEntries}
	if p.TTL != 0 {
		doc.TTL = p.TTL.String()
	}
	return doc, nil
}

func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	var doc policyDoc
	if err := value.Decode(&doc); err != nil {
		return err
	}
	return p.fromDoc(doc)
}

func (p *Policy) fromDoc(doc policyDoc) error {
	ttl, err := parseDuration(doc.TTL)
	if err != nil {
		return fmt.Errorf("%w: ttl: %v", ErrInvalidPolicy, err)
	}
	p.TTL = ttl
	p.MaxEntries = doc.MaxEntries
	return nil
}

// parseDuration accepts a duration string or a number of seconds.
func parseDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		if t == "" {
			return 0, nil
		}
		return time.ParseDuration(t)
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case int:
		return time.Duration(t) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported duration %v (%T)", v, v)
	}
}

// Duration is a time.Duration decoded from a duration string ("90s") or a
// number of seconds, as accepted for Policy TTLs.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := parseDuration(v)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var v any
	if err := value.Decode(&v); err != nil {
		return err
	}
	parsed, err := parseDuration(v)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
