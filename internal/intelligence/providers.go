package intelligence

import (
	"context"
	"strings"

	"memvault/internal/logging"
	"memvault/internal/store"
	"memvault/internal/types"
)

// Store-backed default providers. All of them follow the same contract as the
// rest of the pipeline: storage errors surface as errors here and the
// collector absorbs them.

// StoreStrategies serves strategies from the strategies table, matched by
// keyword against the situation description.
type StoreStrategies struct {
	Q store.Querier
}

// Relevant returns strategies whose situation mentions the task type or one
// of the keywords, best performers first.
func (s *StoreStrategies) Relevant(ctx context.Context, taskType types.TaskType, keywords []string) ([]types.Strategy, error) {
	rows, err := s.Q.All(ctx,
		`SELECT id, name, situation, approach, success_rate, times_used FROM strategies
		 ORDER BY success_rate DESC, times_used DESC LIMIT 20`)
	if err != nil {
		return nil, err
	}

	var out []types.Strategy
	for _, row := range rows {
		situation := strings.ToLower(row.String("situation"))
		if !matchesTask(situation, taskType, keywords) {
			continue
		}
		out = append(out, types.Strategy{
			ID:          row.Int("id"),
			Name:        row.String("name"),
			Situation:   row.String("situation"),
			Approach:    row.String("approach"),
			SuccessRate: row.Float("success_rate"),
			TimesUsed:   int(row.Int("times_used")),
		})
		if len(out) >= 3 {
			break
		}
	}
	return out, nil
}

func matchesTask(situation string, taskType types.TaskType, keywords []string) bool {
	if taskType != types.TaskUnknown && strings.Contains(situation, string(taskType)) {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(situation, kw) {
			return true
		}
	}
	return false
}

// StoreUsage serves current usage counters from the strategies table.
type StoreUsage struct {
	Q store.Querier
}

// UsageCounts fetches times_used for the given strategy ids.
func (s *StoreUsage) UsageCounts(ctx context.Context, ids []int64) (map[int64]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.Q.All(ctx,
		"SELECT id, times_used FROM strategies WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.Int("id")] = int(row.Int("times_used"))
	}
	return counts, nil
}

// StoreStaleness flags decisions and learnings whose last confirmation is 30+
// days old.
type StoreStaleness struct {
	Q store.Querier
}

// Stale returns the oldest unconfirmed knowledge items, up to limit.
func (s *StoreStaleness) Stale(ctx context.Context, limit int) ([]types.StaleItem, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.Q.All(ctx,
		`SELECT 'decision' AS kind, id, title,
		        CAST((unixepoch() - created_at) / 86400 AS INTEGER) AS days
		 FROM decisions
		 WHERE status = 'active' AND unixepoch() - created_at > 30 * 86400
		 UNION ALL
		 SELECT 'learning' AS kind, id, content AS title,
		        CAST((unixepoch() - created_at) / 86400 AS INTEGER) AS days
		 FROM learnings
		 WHERE unixepoch() - created_at > 30 * 86400
		 ORDER BY days DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	var out []types.StaleItem
	for _, row := range rows {
		title := row.String("title")
		if len(title) > 60 {
			title = title[:60]
		}
		out = append(out, types.StaleItem{
			Kind:  row.String("kind"),
			ID:    row.Int("id"),
			Title: title,
			Days:  int(row.Int("days")),
		})
	}
	return out, nil
}

// StoreOverrides serves persisted per-category budget recommendations.
type StoreOverrides struct {
	Q store.Querier
}

// BudgetOverrides loads the budget_recommendations table as a category map.
func (s *StoreOverrides) BudgetOverrides(ctx context.Context) (map[string]int, error) {
	rows, err := s.Q.All(ctx, `SELECT category, tokens FROM budget_recommendations`)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	overrides := make(map[string]int, len(rows))
	for _, row := range rows {
		if cat := row.String("category"); cat != "" {
			overrides[cat] = int(row.Int("tokens"))
		}
	}
	logging.IntelligenceDebug("loaded %d budget overrides", len(overrides))
	return overrides, nil
}
