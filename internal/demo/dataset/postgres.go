package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Copier bulk-inserts rows into one table.
type Copier interface {
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Truncate(ctx context.Context, tables ...string) error
}

// PGCopier streams rows over the Postgres COPY protocol through a pgx
// connection borrowed from a database/sql pool.
type PGCopier struct {
	db *sql.DB
}

func NewPGCopier(db *sql.DB) *PGCopier {
	return &PGCopier{db: db}
}

func (c *PGCopier) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var copied int64
	err = conn.Raw(func(driverConn any) error {
		pgxConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("connection is %T, not a pgx connection", driverConn)
		}
		copied, err = pgxConn.Conn().CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return copied, nil
}

func (c *PGCopier) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := c.db.ExecContext(ctx, "TRUNCATE TABLE "+pgx.Identifier{table}.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

var (
	campaignColumns  = []string{"campaign_id", "campaign_name", "advertiser", "industry", "campaign_type", "daily_budget", "target_device", "start_date", "status"}
	publisherColumns = []string{"publisher_id", "publisher_name", "category", "tier", "country", "monthly_visitors", "mobile_friendly"}
	eventColumns     = []string{"event_id", "campaign_id", "publisher_id", "event_date", "event_hour", "event_type", "device_type", "country", "cost_usd", "revenue_usd"}
)

// LoadPostgres replaces the contents of the three demo tables. Dimensions
// are copied before the fact table so foreign keys hold.
func LoadPostgres(ctx context.Context, copier Copier, tables Tables, logger *slog.Logger) error {
	if copier == nil {
		return fmt.Errorf("copier is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := copier.Truncate(ctx, TableAdEvents, TablePublishers, TableCampaigns); err != nil {
		return err
	}

	batches := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{TableCampaigns, campaignColumns, campaignRows(tables.Campaigns)},
		{TablePublishers, publisherColumns, publisherRows(tables.Publishers)},
		{TableAdEvents, eventColumns, eventRows(tables.Events)},
	}
	for _, batch := range batches {
		copied, err := copier.CopyFrom(ctx, batch.table, batch.columns, batch.rows)
		if err != nil {
			return err
		}
		if copied != int64(len(batch.rows)) {
			return fmt.Errorf("copy into %s: wrote %d of %d rows", batch.table, copied, len(batch.rows))
		}
		logger.Info("demo table loaded", slog.String("table", batch.table), slog.Int64("rows", copied))
	}
	return nil
}

func campaignRows(campaigns []Campaign) [][]any {
	rows := make([][]any, 0, len(campaigns))
	for _, c := range campaigns {
		rows = append(rows, []any{
			c.CampaignID, c.CampaignName, c.Advertiser, c.Industry, c.CampaignType,
			c.DailyBudget, c.TargetDevice, DateFromDays(c.StartDate), c.Status,
		})
	}
	return rows
}

func publisherRows(publishers []Publisher) [][]any {
	rows := make([][]any, 0, len(publishers))
	for _, p := range publishers {
		rows = append(rows, []any{
			p.PublisherID, p.PublisherName, p.Category, p.Tier, p.Country, p.MonthlyVisitors, p.MobileFriendly,
		})
	}
	return rows
}

func eventRows(events []AdEvent) [][]any {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		var revenue any
		if e.RevenueUSD != nil {
			revenue = *e.RevenueUSD
		}
		rows = append(rows, []any{
			e.EventID, e.CampaignID, e.PublisherID, DateFromDays(e.EventDate), e.EventHour,
			e.EventType, e.DeviceType, e.Country, e.CostUSD, revenue,
		})
	}
	return rows
}
