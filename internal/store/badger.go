package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

const (
	refreshPrefix = "refresh/"
	tradePrefix   = "trade/"
)

// BadgerStore 嵌入式 KV 存储
// key = <prefix><20 位纳秒时间戳>/<id>，按 key 逆序遍历即最新在前
type BadgerStore struct {
	db *badger.DB
}

func OpenBadger(path string) (*BadgerStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("badger 存储路径不能为空")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "打开 badger 失败")
	}
	return &BadgerStore{db: db}, nil
}

// OpenBadgerInMemory 测试用
func OpenBadgerInMemory() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, errors.Wrap(err, "打开内存 badger 失败")
	}
	return &BadgerStore{db: db}, nil
}

func timeKey(prefix string, nanos int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefix, nanos, id))
}

func (s *BadgerStore) put(key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "序列化记录失败")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, b)
	})
}

func (s *BadgerStore) SaveRefresh(_ context.Context, rec RefreshRecord) error {
	return errors.Wrap(s.put(timeKey(refreshPrefix, rec.RecordedAt.UnixNano(), rec.ID), rec), "写入刷新记录失败")
}

func (s *BadgerStore) SaveTrade(_ context.Context, rec TradeRecord) error {
	return errors.Wrap(s.put(timeKey(tradePrefix, rec.ReceivedAt.UnixNano(), rec.ID), rec), "写入成交记录失败")
}

// scanLatest 逆序读取 prefix 下最多 limit 条
func (s *BadgerStore) scanLatest(ctx context.Context, prefix string, limit int, decode func([]byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		// 逆序遍历需要从前缀的最大 key 开始
		for it.Seek(append([]byte(prefix), 0xFF)); it.ValidForPrefix([]byte(prefix)) && n < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(decode); err != nil {
				return err
			}
			n++
		}
		return nil
	})
}

func (s *BadgerStore) RecentRefreshes(ctx context.Context, limit int) ([]RefreshRecord, error) {
	out := []RefreshRecord{}
	err := s.scanLatest(ctx, refreshPrefix, normalizeLimit(limit), func(val []byte) error {
		var rec RefreshRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "查询刷新记录失败")
	}
	return out, nil
}

func (s *BadgerStore) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	out := []TradeRecord{}
	err := s.scanLatest(ctx, tradePrefix, normalizeLimit(limit), func(val []byte) error {
		var rec TradeRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "查询成交记录失败")
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
