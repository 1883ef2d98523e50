package service

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// RunProposalExpiryMonitor expires role proposals left pending longer than
// the configured TTL.
func (s *Service) RunProposalExpiryMonitor(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleProposals(ctx)
		}
	}
}

func (s *Service) sweepStaleProposals(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	log := s.logger.Sugar()
	stale, err := s.store.ListStaleProposals(sweepCtx, time.Now().Add(-s.config.ProposalTTL), 100)
	if err != nil {
		log.Warnw("proposal expiry sweep failed", "error", err)
		return
	}

	for _, p := range stale {
		updated, err := s.store.TransitionProposal(sweepCtx, p.ID, domain.ProposalStatusPending, domain.ProposalStatusExpired)
		if err != nil {
			log.Warnw("failed to expire proposal", "proposal_id", p.ID, "error", err)
			continue
		}
		if !updated {
			continue
		}
		p.Status = domain.ProposalStatusExpired
		s.publish(domain.EventTypeProposalDecided, p.ConversationID, p)
	}
}
