package service

import (
	"context"
	"math"
	"time"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// analyticsDays is the width of the daily activity window, today included.
const analyticsDays = 7

// Analytics reports per-participant reply counts and response times plus
// daily activity for the last week.
func (s *Service) Analytics(ctx context.Context) (*domain.Analytics, error) {
	conversations, messages, ai, err := s.store.CountTotals(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.store.UsageByParticipant(ctx)
	if err != nil {
		return nil, err
	}

	out := &domain.Analytics{
		TotalConversations: conversations,
		TotalMessages:      messages,
		AIMessages:         ai,
		Participants:       make([]domain.ParticipantUsage, 0, len(usage)),
	}
	roster := s.Roster()
	var avgSum int64
	for _, u := range usage {
		u.Name = roster.NameOf(u.ParticipantID)
		if ai > 0 {
			u.Percentage = math.Round(float64(u.Messages)/float64(ai)*1000) / 10
		}
		avgSum += u.AvgResponseTimeMs
		out.Participants = append(out.Participants, u)
	}
	// Overall average is the mean of the per-participant averages.
	if len(usage) > 0 {
		out.AvgResponseTimeMs = avgSum / int64(len(usage))
	}

	out.Daily, err = s.dailyActivity(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) dailyActivity(ctx context.Context, now time.Time) ([]domain.DailyActivity, error) {
	now = now.Local()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, -(analyticsDays - 1))
	messages, conversations, err := s.store.ActivitySince(ctx, start)
	if err != nil {
		return nil, err
	}

	days := make([]domain.DailyActivity, analyticsDays)
	index := make(map[string]int, analyticsDays)
	for i := range days {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		days[i].Date = date
		index[date] = i
	}
	for _, t := range messages {
		if i, ok := index[t.Local().Format("2006-01-02")]; ok {
			days[i].Messages++
		}
	}
	for _, t := range conversations {
		if i, ok := index[t.Local().Format("2006-01-02")]; ok {
			days[i].Conversations++
		}
	}
	return days, nil
}
