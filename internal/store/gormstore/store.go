package gormstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coinbutler/internal/store"
	"coinbutler/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implements store.PositionStore on Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

var _ store.PositionStore = (*Store)(nil)

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// NewFromDB wraps an existing gorm connection (tests use sqlite :memory:).
func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	models := []interface{}{
		&positionModel{},
		&dailyPnLModel{},
		&recommendationModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// SQLite + WAL: keep lock contention low, the ledger is the only writer.
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) PutOpen(pos types.Position) error {
	model := toModel(pos)
	return s.db.
		Where("instrument = ? AND status = ?", model.Instrument, string(types.PositionOpen)).
		Assign(model).
		FirstOrCreate(&positionModel{}).Error
}

func (s *Store) MarkClosed(pos types.Position) error {
	if pos.Status != types.PositionClosed {
		return fmt.Errorf("gorm store: MarkClosed requires a closed position, got %q", pos.Status)
	}
	res := s.db.Model(&positionModel{}).
		Where("instrument = ? AND status = ?", pos.Instrument, string(types.PositionOpen)).
		Updates(map[string]any{
			"status":       string(types.PositionClosed),
			"exit_price":   pos.ExitPrice,
			"exit_at":      pos.ExitTime.Unix(),
			"realized_pnl": pos.RealizedPnL,
			"updated_at":   time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("gorm store: no open row for %s", pos.Instrument)
	}
	return nil
}

func (s *Store) ReplaceOpen(positions []types.Position) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ?", string(types.PositionOpen)).
			Delete(&positionModel{}).Error; err != nil {
			return err
		}
		for _, pos := range positions {
			model := toModel(pos)
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListOpen() ([]types.Position, error) {
	var rows []positionModel
	if err := s.db.
		Where("status = ?", string(types.PositionOpen)).
		Order("entry_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

func (s *Store) AddDailyPnL(day string, pnl float64) (float64, error) {
	day = strings.TrimSpace(day)
	if day == "" {
		return 0, fmt.Errorf("gorm store: day is required")
	}
	var total float64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		row := dailyPnLModel{Day: day}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Model(&dailyPnLModel{}).
			Where("day = ?", day).
			Updates(map[string]any{
				"realized_pnl": gorm.Expr("realized_pnl + ?", pnl),
				"updated_at":   time.Now().Unix(),
			}).Error; err != nil {
			return err
		}
		var updated dailyPnLModel
		if err := tx.Where("day = ?", day).First(&updated).Error; err != nil {
			return err
		}
		total = updated.RealizedPnL
		return nil
	})
	return total, err
}

func (s *Store) DailyPnL(day string) (float64, error) {
	var row dailyPnLModel
	err := s.db.Where("day = ?", day).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.RealizedPnL, nil
}

// DailyHistory returns every day with recorded realized pnl, oldest first.
// The report page charts this series.
func (s *Store) DailyHistory() (days []string, pnls []float64, err error) {
	var rows []dailyPnLModel
	if err := s.db.Order("day ASC").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		days = append(days, row.Day)
		pnls = append(pnls, row.RealizedPnL)
	}
	return days, pnls, nil
}

func (s *Store) SaveRecommendation(rec store.RecommendationRecord) (int64, error) {
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return 0, err
	}
	snapJSON, err := json.Marshal(rec.Snapshots)
	if err != nil {
		return 0, err
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	model := recommendationModel{
		Timestamp:     ts.Unix(),
		ModelID:       rec.ModelID,
		ContextJSON:   ctxJSON,
		SnapshotsJSON: snapJSON,
		Instrument:    rec.Instrument,
		Confidence:    rec.Confidence,
		RiskTier:      rec.RiskTier,
		Reason:        rec.Reason,
		TargetPct:     rec.TargetPct,
		StopPct:       rec.StopPct,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

// LinkExecution back-fills the fill price on the newest recommendation for
// the instrument that has not been executed yet.
func (s *Store) LinkExecution(instrument string, execPrice float64) error {
	var row recommendationModel
	err := s.db.
		Where("instrument = ? AND exec_price = 0", instrument).
		Order("ts DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.db.Model(&recommendationModel{}).
		Where("id = ?", row.ID).
		Update("exec_price", execPrice).Error
}

// LinkExit back-fills the exit price on the newest recommendation for the
// instrument that has an execution but no exit yet.
func (s *Store) LinkExit(instrument string, exitPrice float64) error {
	var row recommendationModel
	err := s.db.
		Where("instrument = ? AND exec_price > 0 AND exit_price = 0", instrument).
		Order("ts DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.db.Model(&recommendationModel{}).
		Where("id = ?", row.ID).
		Update("exit_price", exitPrice).Error
}

func toModel(pos types.Position) positionModel {
	estimated := 0
	if pos.EntryEstimated {
		estimated = 1
	}
	var exitUnix int64
	if !pos.ExitTime.IsZero() {
		exitUnix = pos.ExitTime.Unix()
	}
	return positionModel{
		Instrument:     pos.Instrument,
		EntryPrice:     pos.EntryPrice,
		Quantity:       pos.Quantity,
		Investment:     pos.Investment,
		EntryUnix:      pos.EntryTime.Unix(),
		Status:         string(pos.Status),
		ExitPrice:      pos.ExitPrice,
		ExitUnix:       exitUnix,
		RealizedPnL:    pos.RealizedPnL,
		EntryEstimated: estimated,
		UpdatedAtUnix:  time.Now().Unix(),
	}
}

func fromModel(row positionModel) types.Position {
	pos := types.Position{
		Instrument:     row.Instrument,
		EntryPrice:     row.EntryPrice,
		Quantity:       row.Quantity,
		Investment:     row.Investment,
		EntryTime:      time.Unix(row.EntryUnix, 0),
		Status:         types.PositionStatus(row.Status),
		ExitPrice:      row.ExitPrice,
		RealizedPnL:    row.RealizedPnL,
		EntryEstimated: row.EntryEstimated != 0,
	}
	if row.ExitUnix > 0 {
		pos.ExitTime = time.Unix(row.ExitUnix, 0)
	}
	return pos
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
