package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"crocket-go/market"
	"crocket-go/order"
)

// Store 持久化层：区间指标与终态订单各一张表。
// 写入失败由调用方记日志，这里不做重试。
type Store struct {
	db *sql.DB
}

// Open 打开（或创建）数据库并跑迁移。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS interval_metrics (
  market TEXT NOT NULL,
  ts TEXT NOT NULL,
  price TEXT NOT NULL,
  wprice TEXT NOT NULL,
  volume TEXT NOT NULL,
  buys INTEGER NOT NULL,
  sells INTEGER NOT NULL,
  PRIMARY KEY (market, ts)
);`,
		`
CREATE TABLE IF NOT EXISTS orders (
  client_id TEXT PRIMARY KEY,
  uuid TEXT,
  market TEXT NOT NULL,
  side TEXT NOT NULL,
  status TEXT NOT NULL,
  target_price TEXT NOT NULL,
  target_quantity TEXT NOT NULL,
  base_quantity TEXT NOT NULL,
  current_quantity TEXT NOT NULL,
  actual_price TEXT NOT NULL,
  cost TEXT NOT NULL,
  opened_at TEXT,
  closed_at TEXT
);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

// tsLayout 与原始表结构一致：本地时区、秒精度。
const tsLayout = "2006-01-02 15:04:05"

// AppendMetrics 落一行区间指标。同一区间重复写入直接覆盖，
// 强制空区间补发时可能发生。
func (s *Store) AppendMetrics(ctx context.Context, mkt string, m market.IntervalMetrics) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO interval_metrics (market, ts, price, wprice, volume, buys, sells)
VALUES (?,?,?,?,?,?,?)
`, mkt, m.WindowStart.Local().Format(tsLayout),
		m.Price.String(), m.PriceVWAP.String(), m.Volume.String(),
		m.BuyCount, m.SellCount)
	return errors.Wrap(err, "insert metrics")
}

// SaveOrder 落一笔终态订单（完成或跳过）。
func (s *Store) SaveOrder(ctx context.Context, o order.Order) error {
	var opened, closed any
	if !o.OpenedAt.IsZero() {
		opened = o.OpenedAt.Local().Format(time.RFC3339)
	}
	if !o.ClosedAt.IsZero() {
		closed = o.ClosedAt.Local().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO orders
  (client_id, uuid, market, side, status,
   target_price, target_quantity, base_quantity, current_quantity, actual_price, cost,
   opened_at, closed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
`, o.ClientID, o.UUID, o.Market, string(o.Side), string(o.Status),
		o.TargetPrice.String(), o.TargetQuantity.String(), o.BaseQuantity.String(),
		o.CurrentQuantity.String(), o.ActualPrice.String(), o.Cost.String(),
		opened, closed)
	return errors.Wrap(err, "insert order")
}

// Report 市场在时间段内的汇总，供一次性分析命令使用。
type Report struct {
	Market    string
	Rows      int64
	Volume    decimal.Decimal
	Buys      int64
	Sells     int64
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
	MeanPrice decimal.Decimal
	VWAP      decimal.Decimal
}

// BuildReport 汇总一个市场在 [from, to) 内的指标行。
// 金额以 TEXT 存储，逐行解析为 decimal 后在 Go 里累加，全程不走浮点。
func (s *Store) BuildReport(ctx context.Context, mkt string, from, to time.Time) (Report, error) {
	r := Report{Market: mkt}
	rows, err := s.db.QueryContext(ctx, `
SELECT price, wprice, volume, buys, sells
FROM interval_metrics
WHERE market = ? AND ts >= ? AND ts < ?
`, mkt, from.Local().Format(tsLayout), to.Local().Format(tsLayout))
	if err != nil {
		return r, errors.Wrap(err, "build report")
	}
	defer rows.Close()

	var priceSum, weighted decimal.Decimal
	for rows.Next() {
		var price, wprice, volume string
		var buys, sells int64
		if err := rows.Scan(&price, &wprice, &volume, &buys, &sells); err != nil {
			return r, errors.Wrap(err, "build report scan")
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return r, errors.Wrap(err, "build report price")
		}
		wp, err := decimal.NewFromString(wprice)
		if err != nil {
			return r, errors.Wrap(err, "build report wprice")
		}
		v, err := decimal.NewFromString(volume)
		if err != nil {
			return r, errors.Wrap(err, "build report volume")
		}

		if r.Rows == 0 || p.LessThan(r.MinPrice) {
			r.MinPrice = p
		}
		if r.Rows == 0 || p.GreaterThan(r.MaxPrice) {
			r.MaxPrice = p
		}
		r.Rows++
		r.Buys += buys
		r.Sells += sells
		r.Volume = r.Volume.Add(v)
		priceSum = priceSum.Add(p)
		weighted = weighted.Add(wp.Mul(v))
	}
	if err := rows.Err(); err != nil {
		return r, errors.Wrap(err, "build report rows")
	}

	if r.Rows > 0 {
		r.MeanPrice = priceSum.Div(decimal.NewFromInt(r.Rows))
	}
	if r.Volume.IsPositive() {
		r.VWAP = weighted.Div(r.Volume)
	}
	return r, nil
}

func (s *Store) Close() error { return s.db.Close() }
