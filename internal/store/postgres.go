package store

import (
	"context"
	"errors"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/model/enum"

	yerrors "github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceRow is the persisted last price of a symbol.
type PriceRow struct {
	Symbol        string `gorm:"primaryKey;size:32"`
	AssetClass    string `gorm:"size:16;index"`
	Price         float64
	Change        float64
	ChangePercent float64
	High24h       float64
	Low24h        float64
	Volume        float64
	MarketStatus  string `gorm:"size:16"`
	Source        string `gorm:"size:16"`
	ObservedAt    time.Time
	UpdatedAt     time.Time
}

func (PriceRow) TableName() string { return "prices" }

// InstrumentRow is one row of the asset registry table.
type InstrumentRow struct {
	Symbol     string `gorm:"primaryKey;size:32"`
	AssetClass string `gorm:"size:16;index"`
	WireID     string `gorm:"size:32"`
	RestTicker string `gorm:"size:32"`
	BasePrice  float64
	Volatility float64
	Active     bool `gorm:"index"`
}

func (InstrumentRow) TableName() string { return "instruments" }

// Postgres persists prices and serves the instrument registry through gorm.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates or updates the prices and instruments tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&PriceRow{}, &InstrumentRow{}); err != nil {
		return yerrors.Wrap(err, "auto migrate")
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, snapshot model.PriceSnapshot) error {
	row := toPriceRow(snapshot)
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return yerrors.Wrap(err, "upsert price").With("symbol", snapshot.Symbol)
	}
	return nil
}

func (p *Postgres) LastPrice(ctx context.Context, symbol string) (float64, bool, error) {
	var row PriceRow
	err := p.db.WithContext(ctx).Select("price").Where("symbol = ?", symbol).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, yerrors.Wrap(err, "last price").With("symbol", symbol)
	}
	return row.Price, row.Price > 0, nil
}

// Active lists the active instruments of a class from the instruments table.
func (p *Postgres) Active(ctx context.Context, class enum.AssetClass) ([]model.Instrument, error) {
	var rows []InstrumentRow
	err := p.db.WithContext(ctx).
		Where("asset_class = ? AND active = ?", class.String(), true).
		Order("symbol").
		Find(&rows).Error
	if err != nil {
		return nil, yerrors.Wrap(err, "list instruments").With("class", class.String())
	}
	out := make([]model.Instrument, 0, len(rows))
	for _, row := range rows {
		inst, ok := row.toInstrument()
		if !ok {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func toPriceRow(s model.PriceSnapshot) PriceRow {
	return PriceRow{
		Symbol:        s.Symbol,
		AssetClass:    s.Class.String(),
		Price:         s.Price,
		Change:        s.Change,
		ChangePercent: s.ChangePercent,
		High24h:       s.High24h,
		Low24h:        s.Low24h,
		Volume:        s.Volume,
		MarketStatus:  s.Status.String(),
		Source:        s.Source.String(),
		ObservedAt:    s.Timestamp,
	}
}

func (row InstrumentRow) toInstrument() (model.Instrument, bool) {
	class, ok := enum.ParseAssetClass(row.AssetClass)
	if !ok {
		return model.Instrument{}, false
	}
	return model.Instrument{
		Symbol:     row.Symbol,
		Class:      class,
		WireID:     row.WireID,
		RestTicker: row.RestTicker,
		BasePrice:  row.BasePrice,
		Volatility: row.Volatility,
		Active:     row.Active,
	}, true
}
