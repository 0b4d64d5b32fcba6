package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OnAirFM/model"

	"gorm.io/gorm"
)

var (
	// ErrTrackNotFound 曲目不存在
	ErrTrackNotFound = errors.New("track not found")
	// ErrInvalidTrack 曲目数据不合法
	ErrInvalidTrack = errors.New("invalid track")
)

// DefaultRecentLimit 最近播放列表的默认条数
const DefaultRecentLimit = 50

// TrackRepository 曲目数据访问接口，调度器把它当作曲库
type TrackRepository interface {
	ListActive(ctx context.Context) ([]model.Track, error)
	ListRecent(ctx context.Context, limit int) ([]model.Track, error)
	GetByID(ctx context.Context, id uint64) (*model.Track, error)
	Create(ctx context.Context, input model.TrackInput) (*model.Track, error)
	SetInactive(ctx context.Context, id uint64) error
	IncrementPlay(ctx context.Context, id uint64, playedAt time.Time) error
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 曲目仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// ListActive 获取所有可播放的曲目，按 ID 排序
func (r *gormTrackRepository) ListActive(ctx context.Context) ([]model.Track, error) {
	var tracks []model.Track
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active tracks: %w", err)
	}
	return tracks, nil
}

// ListRecent 获取最近播放的曲目，从未播放过的排在最后
func (r *gormTrackRepository) ListRecent(ctx context.Context, limit int) ([]model.Track, error) {
	if limit <= 0 || limit > DefaultRecentLimit {
		limit = DefaultRecentLimit
	}

	var tracks []model.Track
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("last_played IS NULL").
		Order("last_played DESC").
		Order("id DESC").
		Limit(limit).
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent tracks: %w", err)
	}
	return tracks, nil
}

// GetByID 根据ID获取曲目（包括已下架的）
func (r *gormTrackRepository) GetByID(ctx context.Context, id uint64) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).First(&track, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("failed to get track %d: %w", id, err)
	}
	return &track, nil
}

// Create 创建曲目
func (r *gormTrackRepository) Create(ctx context.Context, input model.TrackInput) (*model.Track, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrack, err)
	}

	track := input.ToTrack()
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return nil, fmt.Errorf("failed to create track: %w", err)
	}
	return track, nil
}

// SetInactive 软删除曲目
func (r *gormTrackRepository) SetInactive(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track model.Track
		if err := tx.Select("id").First(&track, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTrackNotFound
			}
			return fmt.Errorf("failed to load track %d: %w", id, err)
		}

		err := tx.Model(&model.Track{}).
			Where("id = ?", id).
			Update("is_active", false).Error
		if err != nil {
			return fmt.Errorf("failed to deactivate track %d: %w", id, err)
		}
		return nil
	})
}

// IncrementPlay 播放计数 +1 并记录最后播放时间
func (r *gormTrackRepository) IncrementPlay(ctx context.Context, id uint64, playedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"play_count":  gorm.Expr("play_count + ?", 1),
			"last_played": playedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to increment play count for track %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}
	return nil
}
