package models

import "github.com/google/uuid"

// AdvertisementContent is the piece of advertising a marketplace can serve.
// RenderableContent is an opaque payload; the engine never interprets it.
type AdvertisementContent struct {
	ID                string `json:"id"`
	MarketplaceID     string `json:"marketplace_id"`
	RenderableContent string `json:"renderable_content"`
}

// GeneratedAdvertisement wraps a selected content item with an identifier
// unique to this generation event. The identifier is never persisted or
// reused across calls. TargetingGroupID names the group that qualified the
// content so feedback events can be credited to it.
type GeneratedAdvertisement struct {
	ID               string               `json:"id"`
	Content          AdvertisementContent `json:"content"`
	TargetingGroupID string               `json:"targeting_group_id,omitempty"`
	ClickThroughRate float64              `json:"click_through_rate,omitempty"`
}

// NewGeneratedAdvertisement wraps winning content with a fresh identifier.
func NewGeneratedAdvertisement(content AdvertisementContent, targetingGroupID string, ctr float64) GeneratedAdvertisement {
	return GeneratedAdvertisement{
		ID:               uuid.NewString(),
		Content:          content,
		TargetingGroupID: targetingGroupID,
		ClickThroughRate: ctr,
	}
}

// EmptyAdvertisement is the sentinel returned when no content is eligible:
// a fresh identifier around empty renderable content.
func EmptyAdvertisement() GeneratedAdvertisement {
	return GeneratedAdvertisement{ID: uuid.NewString()}
}

// IsEmpty reports whether the advertisement is the empty sentinel.
func (g GeneratedAdvertisement) IsEmpty() bool {
	return g.Content.ID == "" && g.Content.RenderableContent == ""
}
