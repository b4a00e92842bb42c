package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/models"
)

// RoutingService serves the adaptive keyword→tool index. Implicit writes come
// from the action ingest path; explicit writes from routing feedback.
type RoutingService struct {
	pool *pgxpool.Pool
}

// NewRoutingService creates a new RoutingService.
func NewRoutingService(pool *pgxpool.Pool) *RoutingService {
	return &RoutingService{pool: pool}
}

// keywordScoreUpsert recomputes the score from the post-increment counters:
// success_rate * 3.0 + 0.5 exploration base + log-usage bonus capped at 0.5,
// clamped to [0.1, 5.0]. Monotonic in both success rate and usage.
const keywordScoreUpsert = `
	INSERT INTO keyword_tool_scores (keyword, tool_name, tool_type, score, usage_count, success_count, last_used)
	VALUES ($1, $2, $3,
		LEAST(5.0, GREATEST(0.1,
			CASE WHEN $4 THEN 3.0 ELSE 0.0 END + 0.5 + LEAST(ln(2) * 0.1, 0.5))),
		1, CASE WHEN $4 THEN 1 ELSE 0 END, now())
	ON CONFLICT (keyword, tool_name) DO UPDATE SET
		usage_count   = keyword_tool_scores.usage_count + 1,
		success_count = keyword_tool_scores.success_count + CASE WHEN $4 THEN 1 ELSE 0 END,
		tool_type     = EXCLUDED.tool_type,
		last_used     = now(),
		score = LEAST(5.0, GREATEST(0.1,
			(keyword_tool_scores.success_count + CASE WHEN $4 THEN 1 ELSE 0 END)::double precision
				/ (keyword_tool_scores.usage_count + 1) * 3.0
			+ 0.5
			+ LEAST(ln(1 + keyword_tool_scores.usage_count + 1) * 0.1, 0.5)))`

// upsertKeywordScoresTx feeds one ingested action into the routing store on
// the ingest transaction. One batched upsert per extracted keyword; ON
// CONFLICT keeps concurrent ingests safe without any in-memory accumulator.
func upsertKeywordScoresTx(ctx context.Context, tx pgx.Tx, toolName, toolType, input string, success bool) error {
	keywords := extractKeywords(toolName, input)
	if len(keywords) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, kw := range keywords {
		batch.Queue(keywordScoreUpsert, kw, toolName, toolType, success)
	}

	results := tx.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range keywords {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert keyword score: %w", err)
		}
	}
	return nil
}

// Suggest returns the tools best matching the given keywords, ordered by
// overlap first, then learned score, then usage; ties break on tool name so
// the ordering is stable.
func (s *RoutingService) Suggest(ctx context.Context, params models.RoutingSuggestParams) (*models.RoutingSuggestResponse, error) {
	if len(params.Keywords) == 0 {
		return nil, NewValidationError("keywords", "required")
	}
	keywords := make([]string, 0, len(params.Keywords))
	for _, kw := range params.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return nil, NewValidationError("keywords", "required")
	}
	limit := clampLimit(params.Limit, 10, 50)

	rows, err := s.pool.Query(ctx, `
		SELECT tool_name,
		       max(tool_type),
		       max(score),
		       count(*)          AS match_count,
		       sum(usage_count)  AS usage
		FROM keyword_tool_scores
		WHERE keyword = ANY($1)
		  AND ($2 = '' OR tool_type = $2)
		  AND score >= $3
		GROUP BY tool_name
		ORDER BY match_count DESC, max(score) DESC, usage DESC, tool_name ASC
		LIMIT $4`,
		keywords, params.ToolType, params.MinScore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := []models.RoutingSuggestion{}
	for rows.Next() {
		var sg models.RoutingSuggestion
		if err := rows.Scan(&sg.ToolName, &sg.ToolType, &sg.Score, &sg.MatchCount, &sg.UsageCount); err != nil {
			return nil, fmt.Errorf("failed to scan routing suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.RoutingSuggestResponse{
		Suggestions:  suggestions,
		CompatOutput: compatOutput(suggestions),
	}, nil
}

// compatOutput renders the pipe-delimited lines shell consumers parse:
// tool_name|tool_type|score|matches.
func compatOutput(suggestions []models.RoutingSuggestion) string {
	var b strings.Builder
	for i, sg := range suggestions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s|%s|%.2f|%d", sg.ToolName, sg.ToolType, sg.Score, sg.MatchCount)
	}
	return b.String()
}

// Feedback adjusts scores for an explicitly chosen or rejected tool: +0.2 per
// matching keyword when chosen, −0.1 when rejected, clamped. Missing
// (keyword, tool) rows are created at the adjusted baseline so rejections
// also leave a trace.
func (s *RoutingService) Feedback(ctx context.Context, req models.RoutingFeedbackRequest) (int64, error) {
	if req.ToolName == "" {
		return 0, NewValidationError("tool_name", "required")
	}
	if len(req.Keywords) == 0 {
		return 0, NewValidationError("keywords", "required")
	}
	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}

	delta := -0.1
	if req.Chosen {
		delta = 0.2
	}

	var updated int64
	for _, kw := range keywords {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO keyword_tool_scores (keyword, tool_name, score, usage_count, success_count, last_used)
			VALUES ($1, $2, LEAST(5.0, GREATEST(0.1, 0.5 + $3)), 0, 0, now())
			ON CONFLICT (keyword, tool_name) DO UPDATE SET
				score = LEAST(5.0, GREATEST(0.1, keyword_tool_scores.score + $3)),
				last_used = now()`,
			kw, req.ToolName, delta)
		if err != nil {
			return updated, fmt.Errorf("failed to apply routing feedback: %w", err)
		}
		updated += tag.RowsAffected()
	}
	return updated, nil
}

// Stats summarizes the routing store for GET /routing/stats.
func (s *RoutingService) Stats(ctx context.Context) (*models.RoutingStats, error) {
	var st models.RoutingStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT keyword), count(DISTINCT tool_name)
		FROM keyword_tool_scores`).Scan(&st.TotalRows, &st.DistinctKeywords, &st.DistinctTools)
	if err != nil {
		return nil, fmt.Errorf("failed to count routing rows: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, keyword, tool_name, tool_type, score, usage_count, success_count, last_used
		FROM keyword_tool_scores
		ORDER BY score DESC, usage_count DESC, keyword ASC
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top routing scores: %w", err)
	}
	defer rows.Close()

	st.TopScores = []models.KeywordToolScore{}
	for rows.Next() {
		var ks models.KeywordToolScore
		err := rows.Scan(&ks.ID, &ks.Keyword, &ks.ToolName, &ks.ToolType,
			&ks.Score, &ks.UsageCount, &ks.SuccessCount, &ks.LastUsed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing score: %w", err)
		}
		st.TopScores = append(st.TopScores, ks)
	}
	return &st, rows.Err()
}
