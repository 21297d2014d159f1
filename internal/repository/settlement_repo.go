package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creditpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSettlementRunNotFound = errors.New("结算批次不存在")
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// GetRunByDate 按统计日查询批次，不存在时返回 nil
func (r *SettlementRepository) GetRunByDate(ctx context.Context, runDate string) (*model.SettlementRun, error) {
	var run model.SettlementRun
	err := r.db.WithContext(ctx).Where("run_date = ?", runDate).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *SettlementRepository) CreateRun(ctx context.Context, run *model.SettlementRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// CompleteRun 批次收尾，写入统计数并置为 COMPLETED
func (r *SettlementRepository) CompleteRun(ctx context.Context, tx *gorm.DB, runID int64, aggregateCount, settledCount, skippedCount int, finishedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.SettlementRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":          model.SettlementRunStatusCompleted,
			"aggregate_count": aggregateCount,
			"settled_count":   settledCount,
			"skipped_count":   skippedCount,
			"finished_at":     finishedAt,
		}).Error
}

// CreateBatch 批量写入一个分片的结算单
func (r *SettlementRepository) CreateBatch(ctx context.Context, tx *gorm.DB, settlements []*model.Settlement) error {
	if tx == nil {
		tx = r.db
	}
	if len(settlements) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(settlements).Error
}

// GetRunTargets 查询某批次已生成结算单的 (创作者, 内容) 集合
// 批次中断重跑时据此跳过已处理的聚合行
func (r *SettlementRepository) GetRunTargets(ctx context.Context, runID int64) (map[string]bool, error) {
	var settlements []*model.Settlement
	err := r.db.WithContext(ctx).
		Select("creator_id", "content_id").
		Where("run_id = ?", runID).
		Find(&settlements).Error
	if err != nil {
		return nil, err
	}

	targets := make(map[string]bool, len(settlements))
	for _, s := range settlements {
		targets[TargetKey(s.CreatorID, s.ContentID)] = true
	}
	return targets, nil
}

// TargetKey 聚合行的去重键
func TargetKey(creatorID, contentID int64) string {
	return fmt.Sprintf("%d:%d", creatorID, contentID)
}

// SumNetByCreator 创作者全部结算单的净额合计
func (r *SettlementRepository) SumNetByCreator(ctx context.Context, tx *gorm.DB, creatorID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.Settlement{}).
		Select("COALESCE(SUM(net_amount), 0)").
		Where("creator_id = ?", creatorID).
		Scan(&total).Error
	return total, err
}

func (r *SettlementRepository) ListByCreator(ctx context.Context, creatorID int64, page, pageSize int) ([]*model.Settlement, int64, error) {
	var settlements []*model.Settlement
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Settlement{}).Where("creator_id = ?", creatorID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("settled_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&settlements).Error

	return settlements, total, err
}
