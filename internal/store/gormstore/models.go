package gormstore

import "gorm.io/datatypes"

type positionModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	Instrument     string         `gorm:"column:instrument;index:idx_positions_instrument"`
	EntryPrice     float64        `gorm:"column:entry_price"`
	Quantity       float64        `gorm:"column:quantity"`
	Investment     float64        `gorm:"column:investment"`
	EntryUnix      int64          `gorm:"column:entry_at"`
	Status         string         `gorm:"column:status;index:idx_positions_status"`
	ExitPrice      float64        `gorm:"column:exit_price"`
	ExitUnix       int64          `gorm:"column:exit_at"`
	RealizedPnL    float64        `gorm:"column:realized_pnl"`
	EntryEstimated int            `gorm:"column:entry_estimated"`
	UpdatedAtUnix  int64          `gorm:"column:updated_at"`
	Raw            datatypes.JSON `gorm:"column:raw;type:TEXT"`
}

func (positionModel) TableName() string { return "positions" }

type dailyPnLModel struct {
	Day           string  `gorm:"column:day;primaryKey"`
	RealizedPnL   float64 `gorm:"column:realized_pnl"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (dailyPnLModel) TableName() string { return "daily_pnl" }

type recommendationModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Timestamp     int64          `gorm:"column:ts"`
	ModelID       string         `gorm:"column:model_id"`
	ContextJSON   datatypes.JSON `gorm:"column:context_json;type:TEXT"`
	SnapshotsJSON datatypes.JSON `gorm:"column:snapshots_json;type:TEXT"`
	Instrument    string         `gorm:"column:instrument;index:idx_reco_instrument"`
	Confidence    int            `gorm:"column:confidence"`
	RiskTier      string         `gorm:"column:risk_tier"`
	Reason        string         `gorm:"column:reason"`
	TargetPct     float64        `gorm:"column:target_pct"`
	StopPct       float64        `gorm:"column:stop_pct"`
	ExecPrice     float64        `gorm:"column:exec_price"`
	ExitPrice     float64        `gorm:"column:exit_price"`
}

func (recommendationModel) TableName() string { return "recommendations" }
