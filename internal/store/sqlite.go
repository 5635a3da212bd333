package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore 默认存储
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "创建数据库目录失败")
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "打开 sqlite 失败")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS refresh_history (
  id TEXT PRIMARY KEY,
  seq INTEGER NOT NULL,
  source TEXT NOT NULL,
  shape TEXT NOT NULL,
  quote_count INTEGER NOT NULL,
  top_n INTEGER NOT NULL,
  leaderboard_json TEXT NOT NULL,
  recorded_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_history_recorded_at ON refresh_history(recorded_at);`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  side TEXT NOT NULL,
  symbol TEXT NOT NULL,
  quantity TEXT NOT NULL,
  price REAL,
  summary TEXT NOT NULL,
  received_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_received_at ON trades(received_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "数据库迁移失败: %s", firstLine(stmt))
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRefresh(ctx context.Context, rec RefreshRecord) error {
	board, err := json.Marshal(rec.Leaderboard)
	if err != nil {
		return errors.Wrap(err, "序列化排行榜失败")
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO refresh_history (id, seq, source, shape, quote_count, top_n, leaderboard_json, recorded_at)
VALUES (?,?,?,?,?,?,?,?)
`, rec.ID, int64(rec.Seq), rec.Source, rec.Shape, rec.QuoteCount, rec.TopN, string(board), formatTime(rec.RecordedAt))
	return errors.Wrap(err, "写入刷新记录失败")
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, rec TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (id, side, symbol, quantity, price, summary, received_at)
VALUES (?,?,?,?,?,?,?)
`, rec.ID, rec.Type, rec.Symbol, rec.Quantity, rec.Price, rec.Summary, formatTime(rec.ReceivedAt))
	return errors.Wrap(err, "写入成交记录失败")
}

func (s *SQLiteStore) RecentRefreshes(ctx context.Context, limit int) ([]RefreshRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, seq, source, shape, quote_count, top_n, leaderboard_json, recorded_at
FROM refresh_history
ORDER BY recorded_at DESC, seq DESC
LIMIT ?
`, normalizeLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "查询刷新记录失败")
	}
	defer rows.Close()

	out := []RefreshRecord{}
	for rows.Next() {
		var (
			rec        RefreshRecord
			seq        int64
			board      string
			recordedAt string
		)
		if err := rows.Scan(&rec.ID, &seq, &rec.Source, &rec.Shape, &rec.QuoteCount, &rec.TopN, &board, &recordedAt); err != nil {
			return nil, errors.Wrap(err, "读取刷新记录失败")
		}
		rec.Seq = uint64(seq)
		if err := json.Unmarshal([]byte(board), &rec.Leaderboard); err != nil {
			return nil, errors.Wrapf(err, "解析刷新记录 %s 失败", rec.ID)
		}
		rec.RecordedAt = parseTime(recordedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, side, symbol, quantity, price, summary, received_at
FROM trades
ORDER BY received_at DESC
LIMIT ?
`, normalizeLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "查询成交记录失败")
	}
	defer rows.Close()

	out := []TradeRecord{}
	for rows.Next() {
		var (
			rec        TradeRecord
			price      sql.NullFloat64
			receivedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Symbol, &rec.Quantity, &price, &rec.Summary, &receivedAt); err != nil {
			return nil, errors.Wrap(err, "读取成交记录失败")
		}
		if price.Valid {
			v := price.Float64
			rec.Price = &v
		}
		rec.ReceivedAt = parseTime(receivedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// 固定宽度的 UTC 时间，保证按字符串排序即按时间排序
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(storedTimeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func firstLine(stmt string) string {
	for _, line := range strings.Split(stmt, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return stmt
}
