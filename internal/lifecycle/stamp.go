package lifecycle

import (
	"strconv"
	"strings"
	"time"
)

// Keys of the stamp written onto every instance gmab creates.
const (
	MarkerKey       = "gmab"
	CreationTimeKey = "gmab-creation-time"
	LifetimeKey     = "gmab-lifetime"
)

// Stamp records when an instance was created and how long it may live.
type Stamp struct {
	CreatedAt       time.Time
	LifetimeMinutes int
}

// Labels encodes the stamp as key/value labels (Hetzner, AWS, GCP, Yandex).
func (s Stamp) Labels() map[string]string {
	return map[string]string{
		MarkerKey:       "true",
		CreationTimeKey: strconv.FormatInt(s.CreatedAt.Unix(), 10),
		LifetimeKey:     strconv.Itoa(s.LifetimeMinutes),
	}
}

// Tags encodes the stamp as flat tags (Linode, DigitalOcean).
func (s Stamp) Tags() []string {
	return []string{
		MarkerKey,
		CreationTimeKey + "-" + strconv.FormatInt(s.CreatedAt.Unix(), 10),
		LifetimeKey + "-" + strconv.Itoa(s.LifetimeMinutes),
	}
}

// HasMarkerLabel reports whether labels carry the gmab marker.
func HasMarkerLabel(labels map[string]string) bool {
	v, ok := labels[MarkerKey]
	return ok && v != "false"
}

// HasMarkerTag reports whether tags carry the gmab marker.
func HasMarkerTag(tags []string) bool {
	for _, t := range tags {
		if t == MarkerKey {
			return true
		}
	}
	return false
}

// FromLabels decodes a stamp from labels. Missing or malformed values fall
// back to created (the provider-reported creation time) and DefaultLifetimeMinutes.
func FromLabels(labels map[string]string, created time.Time) Stamp {
	s := Stamp{CreatedAt: created, LifetimeMinutes: DefaultLifetimeMinutes}
	if v, ok := labels[CreationTimeKey]; ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.CreatedAt = time.Unix(ts, 0)
		}
	}
	if v, ok := labels[LifetimeKey]; ok {
		if m, err := strconv.Atoi(v); err == nil {
			s.LifetimeMinutes = m
		}
	}
	return s
}

// FromTags decodes a stamp from flat tags, with the same fallbacks as FromLabels.
func FromTags(tags []string, created time.Time) Stamp {
	labels := make(map[string]string, 2)
	for _, t := range tags {
		switch {
		case strings.HasPrefix(t, CreationTimeKey+"-"):
			labels[CreationTimeKey] = strings.TrimPrefix(t, CreationTimeKey+"-")
		case strings.HasPrefix(t, LifetimeKey+"-"):
			labels[LifetimeKey] = strings.TrimPrefix(t, LifetimeKey+"-")
		}
	}
	return FromLabels(labels, created)
}
