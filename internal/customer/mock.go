package customer

import "context"

// StaticProfiles is an in-memory ProfileLookup for tests and local runs.
type StaticProfiles struct {
	Profiles map[string]Profile
	Err      error
}

func (s *StaticProfiles) GetProfile(_ context.Context, customerID string) (Profile, error) {
	if s.Err != nil {
		return Profile{}, s.Err
	}
	return s.Profiles[customerID], nil
}

// StaticSpend is an in-memory SpendLookup for tests and local runs.
type StaticSpend struct {
	Spend map[string]map[string]Spend // customerID:marketplaceID -> category -> spend
	Err   error
}

func (s *StaticSpend) GetSpendByCategory(_ context.Context, customerID, marketplaceID string) (map[string]Spend, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	byCategory := s.Spend[customerID+":"+marketplaceID]
	if byCategory == nil {
		byCategory = map[string]Spend{}
	}
	return byCategory, nil
}

// StaticBenefits is an in-memory BenefitLookup for tests and local runs.
type StaticBenefits struct {
	Benefits map[string][]string // customerID:marketplaceID -> benefit types
	Err      error
}

func (s *StaticBenefits) GetBenefits(_ context.Context, customerID, marketplaceID string) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Benefits[customerID+":"+marketplaceID], nil
}
