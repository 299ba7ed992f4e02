package analytics

import (
	"context"
	"time"

	"fractionbot/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Total    int
	ByAction map[string]int
}

// Report counts audit-log entries per action since the given time.
func (s *Service) Report(ctx context.Context, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByAction: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByAction[log.Action]++
	}
	return report, nil
}
