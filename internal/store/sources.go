package store

import (
	"encoding/json"
	"errors"
	"fmt"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

// ErrCorruptEvents is returned when the remembered upload can no longer be
// decoded. The bad value has already been removed.
var ErrCorruptEvents = errors.New("stored calendar data could not be parsed")

// SourceKind tells which calendar the student last picked.
type SourceKind string

const (
	SourceNone   SourceKind = "none"
	SourceUpload SourceKind = "upload"
	SourceURL    SourceKind = "url"
)

// Source is the remembered calendar.
type Source struct {
	Kind     SourceKind       `json:"kind"`
	FileName string           `json:"fileName,omitempty"`
	URL      string           `json:"url,omitempty"`
	Events   []model.RawEvent `json:"-"`
}

// Sources reads and writes the remembered calendar through a Store.
type Sources struct {
	store Store
}

func NewSources(s Store) *Sources {
	return &Sources{store: s}
}

// RememberUpload stores the raw events of an uploaded file. The previous
// link, if any, is forgotten so the newest choice wins.
func (s *Sources) RememberUpload(fileName string, events []model.RawEvent) error {
	if events == nil {
		events = []model.RawEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	if err := s.store.Set(KeyEvents, string(data)); err != nil {
		return err
	}
	if err := s.store.Set(KeyFileName, fileName); err != nil {
		return err
	}
	return s.store.Delete(KeyICSURL)
}

// RememberURL stores the ICS link and forgets any uploaded file.
func (s *Sources) RememberURL(url string) error {
	if err := s.store.Set(KeyICSURL, url); err != nil {
		return err
	}
	if err := s.store.Delete(KeyEvents); err != nil {
		return err
	}
	return s.store.Delete(KeyFileName)
}

// Forget clears every remembered value.
func (s *Sources) Forget() error {
	return s.store.Clear()
}

// ICSURL returns the remembered link, or "".
func (s *Sources) ICSURL() (string, error) {
	v, _, err := s.store.Get(KeyICSURL)
	return v, err
}

// Current returns the remembered calendar. An uploaded file takes
// precedence over a link. Undecodable stored events are deleted and
// reported with ErrCorruptEvents.
func (s *Sources) Current() (Source, error) {
	raw, ok, err := s.store.Get(KeyEvents)
	if err != nil {
		return Source{Kind: SourceNone}, err
	}
	if ok {
		name, _, err := s.store.Get(KeyFileName)
		if err != nil {
			return Source{Kind: SourceNone}, err
		}
		var events []model.RawEvent
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			appLog.Error("stored calendar events are corrupt; clearing", err, "file", name)
			if derr := s.store.Delete(KeyEvents); derr != nil {
				return Source{Kind: SourceNone}, derr
			}
			return Source{Kind: SourceNone}, fmt.Errorf("%w: %v", ErrCorruptEvents, err)
		}
		return Source{Kind: SourceUpload, FileName: name, Events: events}, nil
	}

	url, ok, err := s.store.Get(KeyICSURL)
	if err != nil {
		return Source{Kind: SourceNone}, err
	}
	if ok && url != "" {
		return Source{Kind: SourceURL, URL: url}, nil
	}
	return Source{Kind: SourceNone}, nil
}
