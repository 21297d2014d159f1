package repository

import (
	"context"
	"errors"

	"creditpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCreatorNotFound = errors.New("创作者不存在")
	ErrContentNotFound = errors.New("内容不存在")
)

type CreatorRepository struct {
	db *gorm.DB
}

func NewCreatorRepository(db *gorm.DB) *CreatorRepository {
	return &CreatorRepository{db: db}
}

func (r *CreatorRepository) Create(ctx context.Context, creator *model.Creator) error {
	return r.db.WithContext(ctx).Create(creator).Error
}

func (r *CreatorRepository) GetByID(ctx context.Context, creatorID int64) (*model.Creator, error) {
	var creator model.Creator
	err := r.db.WithContext(ctx).Where("id = ?", creatorID).First(&creator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCreatorNotFound
		}
		return nil, err
	}
	return &creator, nil
}

func (r *CreatorRepository) GetByUserID(ctx context.Context, userID int64) (*model.Creator, error) {
	var creator model.Creator
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&creator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCreatorNotFound
		}
		return nil, err
	}
	return &creator, nil
}

// GetByIDs 批量查询创作者，结算分片用它一次解析整片引用
func (r *CreatorRepository) GetByIDs(ctx context.Context, tx *gorm.DB, creatorIDs []int64) (map[int64]*model.Creator, error) {
	if tx == nil {
		tx = r.db
	}
	if len(creatorIDs) == 0 {
		return map[int64]*model.Creator{}, nil
	}
	var creators []*model.Creator
	err := tx.WithContext(ctx).Where("id IN ?", creatorIDs).Find(&creators).Error
	if err != nil {
		return nil, err
	}
	result := make(map[int64]*model.Creator, len(creators))
	for _, c := range creators {
		result[c.ID] = c
	}
	return result, nil
}

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) Create(ctx context.Context, content *model.Content) error {
	return r.db.WithContext(ctx).Create(content).Error
}

func (r *ContentRepository) GetByID(ctx context.Context, contentID int64) (*model.Content, error) {
	var content model.Content
	err := r.db.WithContext(ctx).Where("id = ?", contentID).First(&content).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	return &content, nil
}

// GetByIDs 批量查询内容
func (r *ContentRepository) GetByIDs(ctx context.Context, tx *gorm.DB, contentIDs []int64) (map[int64]*model.Content, error) {
	if tx == nil {
		tx = r.db
	}
	if len(contentIDs) == 0 {
		return map[int64]*model.Content{}, nil
	}
	var contents []*model.Content
	err := tx.WithContext(ctx).Where("id IN ?", contentIDs).Find(&contents).Error
	if err != nil {
		return nil, err
	}
	result := make(map[int64]*model.Content, len(contents))
	for _, c := range contents {
		result[c.ID] = c
	}
	return result, nil
}
