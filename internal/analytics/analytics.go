// Package analytics summarizes recorded violations for moderator reports.
package analytics

import (
	"context"
	"time"

	"sbmod/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Total  int
	ByKind map[string]int
	ByUser map[string]int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	violations, err := s.store.ListViolations(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByKind: make(map[string]int), ByUser: make(map[string]int)}
	for _, violation := range violations {
		report.Total++
		report.ByUser[violation.UserID]++
		for _, kind := range violation.Kinds {
			report.ByKind[kind]++
		}
	}
	return report, nil
}
