// Package store persists the minimum room state needed to survive a process
// restart, plus finished game results. Callers serialize their own writes
// per room; the store never fans a single room's writes out concurrently.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/filmdraft/filmdraft-backend/internal/engine"
)

type RoomRecord struct {
	Name       string `gorm:"primaryKey"`
	Capacity   int
	DraftPicks int
	Phase      string
	StateJSON  string
	UpdatedAt  time.Time
}

type GameResult struct {
	ID          uint `gorm:"primaryKey"`
	RoomName    string
	WinnerID    string
	WinnerName  string
	VoteCount   int
	PlayerCount int
	CreatedAt   time.Time
}

type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&RoomRecord{}, &GameResult{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// SaveRoom upserts the full room snapshot.
func (s *Store) SaveRoom(ctx context.Context, name string, st engine.State) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal room state: %w", err)
	}
	rec := RoomRecord{
		Name:       name,
		Capacity:   st.Config.Capacity,
		DraftPicks: st.Config.DraftPicks,
		Phase:      string(st.Phase),
		StateJSON:  string(blob),
		UpdatedAt:  time.Now(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

func (s *Store) DeleteRoom(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&RoomRecord{Name: name}).Error
}

// SaveResult records a finished game.
func (s *Store) SaveResult(ctx context.Context, name string, st engine.State) error {
	if st.Winner == "" {
		return fmt.Errorf("no winner to record for room %s", name)
	}
	rec := GameResult{
		RoomName:    name,
		WinnerID:    st.Winner,
		WinnerName:  st.ItemName(st.Winner),
		VoteCount:   st.Tally[st.Winner],
		PlayerCount: len(st.Players),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	s.logger.Info("game result saved",
		zap.String("room", name),
		zap.String("winner", rec.WinnerName),
		zap.Int("votes", rec.VoteCount),
		zap.Int("players", rec.PlayerCount))
	return nil
}

// LoadRooms returns every persisted room snapshot, keyed by name. Records
// that no longer unmarshal are skipped rather than blocking startup.
func (s *Store) LoadRooms(ctx context.Context) (map[string]engine.State, error) {
	var recs []RoomRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	states := make(map[string]engine.State, len(recs))
	for _, rec := range recs {
		var st engine.State
		if err := json.Unmarshal([]byte(rec.StateJSON), &st); err != nil {
			s.logger.Warn("skipping unreadable room record",
				zap.String("room", rec.Name), zap.Error(err))
			continue
		}
		states[rec.Name] = st
	}
	return states, nil
}
