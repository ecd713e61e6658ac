package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SQLTermSource reads blocked terms from the blacklist_words table.
type SQLTermSource struct {
	db *sql.DB
}

func NewSQLTermSource(db *sql.DB) *SQLTermSource {
	return &SQLTermSource{db: db}
}

func (s *SQLTermSource) ListTerms(ctx context.Context) ([]string, error) {
	const q = `SELECT word FROM blacklist_words`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list blacklist words: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan blacklist word: %w", err)
		}
		terms = append(terms, strings.ToLower(strings.TrimSpace(w)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blacklist words rows: %w", err)
	}
	return terms, nil
}

const defaultTermCacheTTL = time.Minute

// CachedTermSource fronts a TermSource with a redis TTL cache so every send
// does not hit the database. Cache errors fall through to the inner source.
type CachedTermSource struct {
	inner  TermSource
	rdb    *redis.Client
	logger *slog.Logger
	key    string
	ttl    time.Duration
}

func NewCachedTermSource(inner TermSource, rdb *redis.Client, logger *slog.Logger) *CachedTermSource {
	return &CachedTermSource{
		inner:  inner,
		rdb:    rdb,
		logger: logger.With("component", "policy_cache"),
		key:    "policy:blocked_terms",
		ttl:    defaultTermCacheTTL,
	}
}

func (c *CachedTermSource) ListTerms(ctx context.Context) ([]string, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, c.key).Bytes()
		if err == nil {
			var terms []string
			if err := json.Unmarshal(raw, &terms); err == nil {
				return terms, nil
			}
			c.logger.Warn("corrupt cached term set, refetching")
		} else if err != redis.Nil {
			c.logger.Warn("term cache read failed", "err", err)
		}
	}

	terms, err := c.inner.ListTerms(ctx)
	if err != nil {
		return nil, err
	}

	if c.rdb != nil {
		if raw, err := json.Marshal(terms); err == nil {
			if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("term cache write failed", "err", err)
			}
		}
	}
	return terms, nil
}
