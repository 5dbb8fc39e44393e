package models

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ContentDataStore is the read/write surface over advertisement content and
// the targeting groups attached to it.
type ContentDataStore interface {
	GetContent(id string) (AdvertisementContent, error)
	ListContent() []AdvertisementContent
	ListContentByMarketplace(marketplaceID string) []AdvertisementContent

	GetGroup(id string) (TargetingGroup, error)
	ListGroups() []TargetingGroup
	GroupsForContent(contentID string) []TargetingGroup

	CreateContent(content AdvertisementContent) (AdvertisementContent, error)
	UpdateContent(content AdvertisementContent) (AdvertisementContent, error)
	CreateGroup(group TargetingGroup) (TargetingGroup, error)
	UpdateClickThroughRate(groupID string, ctr float64) error
	UpdateClickThroughRates(rates map[string]float64) error
	DeleteContent(id string) error
	DeleteGroup(id string) error
	DeleteGroupsForContent(contentID string) error

	ReloadAll(contents []AdvertisementContent, groups []TargetingGroup)
}

// dataSnapshot is an immutable view of all content and groups. Readers load
// the current snapshot atomically; writers build a replacement under the
// write mutex and swap it in.
type dataSnapshot struct {
	contents        map[string]AdvertisementContent
	groups          map[string]TargetingGroup
	groupsByContent map[string][]TargetingGroup
}

func newSnapshot(contents []AdvertisementContent, groups []TargetingGroup) *dataSnapshot {
	snap := &dataSnapshot{
		contents:        make(map[string]AdvertisementContent, len(contents)),
		groups:          make(map[string]TargetingGroup, len(groups)),
		groupsByContent: make(map[string][]TargetingGroup),
	}
	for _, c := range contents {
		snap.contents[c.ID] = c
	}
	for _, g := range groups {
		snap.groups[g.ID] = g
		snap.groupsByContent[g.ContentID] = append(snap.groupsByContent[g.ContentID], g)
	}
	return snap
}

func (s *dataSnapshot) clone() ([]AdvertisementContent, []TargetingGroup) {
	contents := make([]AdvertisementContent, 0, len(s.contents))
	for _, c := range s.contents {
		contents = append(contents, c)
	}
	groups := make([]TargetingGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	return contents, groups
}

// InMemoryContentDataStore keeps all content and targeting groups in an
// atomically swapped snapshot so that reads on the selection path never
// contend with writes.
type InMemoryContentDataStore struct {
	snapshot atomic.Pointer[dataSnapshot]
	writeMu  sync.Mutex
}

// NewInMemoryContentDataStore returns an empty store.
func NewInMemoryContentDataStore() *InMemoryContentDataStore {
	s := &InMemoryContentDataStore{}
	s.snapshot.Store(newSnapshot(nil, nil))
	return s
}

func (s *InMemoryContentDataStore) GetContent(id string) (AdvertisementContent, error) {
	snap := s.snapshot.Load()
	c, ok := snap.contents[id]
	if !ok {
		return AdvertisementContent{}, NewContentNotFound(id)
	}
	return c, nil
}

func (s *InMemoryContentDataStore) ListContent() []AdvertisementContent {
	snap := s.snapshot.Load()
	out := make([]AdvertisementContent, 0, len(snap.contents))
	for _, c := range snap.contents {
		out = append(out, c)
	}
	return out
}

func (s *InMemoryContentDataStore) ListContentByMarketplace(marketplaceID string) []AdvertisementContent {
	snap := s.snapshot.Load()
	var out []AdvertisementContent
	for _, c := range snap.contents {
		if c.MarketplaceID == marketplaceID {
			out = append(out, c)
		}
	}
	return out
}

func (s *InMemoryContentDataStore) GetGroup(id string) (TargetingGroup, error) {
	snap := s.snapshot.Load()
	g, ok := snap.groups[id]
	if !ok {
		return TargetingGroup{}, NewGroupNotFound(id)
	}
	return g, nil
}

func (s *InMemoryContentDataStore) ListGroups() []TargetingGroup {
	snap := s.snapshot.Load()
	out := make([]TargetingGroup, 0, len(snap.groups))
	for _, g := range snap.groups {
		out = append(out, g)
	}
	return out
}

func (s *InMemoryContentDataStore) GroupsForContent(contentID string) []TargetingGroup {
	snap := s.snapshot.Load()
	groups := snap.groupsByContent[contentID]
	out := make([]TargetingGroup, len(groups))
	copy(out, groups)
	return out
}

func (s *InMemoryContentDataStore) CreateContent(content AdvertisementContent) (AdvertisementContent, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if content.ID == "" {
		content.ID = uuid.NewString()
	}
	contents, groups := s.snapshot.Load().clone()
	contents = append(contents, content)
	s.snapshot.Store(newSnapshot(contents, groups))
	return content, nil
}

// UpdateContent overwrites an existing content item's marketplace and
// renderable payload. The content must already exist.
func (s *InMemoryContentDataStore) UpdateContent(content AdvertisementContent) (AdvertisementContent, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.snapshot.Load()
	if _, ok := snap.contents[content.ID]; !ok {
		return AdvertisementContent{}, NewContentNotFound(content.ID)
	}
	contents, groups := snap.clone()
	for i := range contents {
		if contents[i].ID == content.ID {
			contents[i] = content
			break
		}
	}
	s.snapshot.Store(newSnapshot(contents, groups))
	return content, nil
}

func (s *InMemoryContentDataStore) CreateGroup(group TargetingGroup) (TargetingGroup, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.snapshot.Load()
	if _, ok := snap.contents[group.ContentID]; !ok {
		return TargetingGroup{}, NewContentNotFound(group.ContentID)
	}
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.ClickThroughRate == 0 {
		group.ClickThroughRate = DefaultClickThroughRate
	}
	contents, groups := snap.clone()
	groups = append(groups, group)
	s.snapshot.Store(newSnapshot(contents, groups))
	return group, nil
}

func (s *InMemoryContentDataStore) UpdateClickThroughRate(groupID string, ctr float64) error {
	return s.UpdateClickThroughRates(map[string]float64{groupID: ctr})
}

// UpdateClickThroughRates applies a batch of CTR updates in a single
// snapshot swap. Every ID must exist; a missing one fails the whole batch.
func (s *InMemoryContentDataStore) UpdateClickThroughRates(rates map[string]float64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.snapshot.Load()
	for id := range rates {
		if _, ok := snap.groups[id]; !ok {
			return NewGroupNotFound(id)
		}
	}
	contents, groups := snap.clone()
	for i := range groups {
		if ctr, ok := rates[groups[i].ID]; ok {
			groups[i].ClickThroughRate = ctr
		}
	}
	s.snapshot.Store(newSnapshot(contents, groups))
	return nil
}

// DeleteContent removes a content item along with every targeting group
// attached to it.
func (s *InMemoryContentDataStore) DeleteContent(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.snapshot.Load()
	if _, ok := snap.contents[id]; !ok {
		return NewContentNotFound(id)
	}
	contents, groups := snap.clone()
	kept := contents[:0]
	for _, c := range contents {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	keptGroups := groups[:0]
	for _, g := range groups {
		if g.ContentID != id {
			keptGroups = append(keptGroups, g)
		}
	}
	s.snapshot.Store(newSnapshot(kept, keptGroups))
	return nil
}

func (s *InMemoryContentDataStore) DeleteGroup(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.snapshot.Load()
	if _, ok := snap.groups[id]; !ok {
		return NewGroupNotFound(id)
	}
	contents, groups := snap.clone()
	kept := groups[:0]
	for _, g := range groups {
		if g.ID != id {
			kept = append(kept, g)
		}
	}
	s.snapshot.Store(newSnapshot(contents, kept))
	return nil
}

// DeleteGroupsForContent removes every targeting group attached to a content
// item, leaving the content itself in place. The content must exist.
func (s *InMemoryContentDataStore) DeleteGroupsForContent(contentID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.snapshot.Load()
	if _, ok := snap.contents[contentID]; !ok {
		return NewContentNotFound(contentID)
	}
	contents, groups := snap.clone()
	kept := groups[:0]
	for _, g := range groups {
		if g.ContentID != contentID {
			kept = append(kept, g)
		}
	}
	s.snapshot.Store(newSnapshot(contents, kept))
	return nil
}

// ReloadAll replaces the entire store contents, typically after a load from
// the persistence layer.
func (s *InMemoryContentDataStore) ReloadAll(contents []AdvertisementContent, groups []TargetingGroup) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.snapshot.Store(newSnapshot(contents, groups))
}
