package storage

import (
	"errors"
	"time"

	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/models"

	"gorm.io/gorm"
)

// GroupRepository handles database operations for GroupInfo
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// MigrateTable ensures the GroupInfo table exists
func (r *GroupRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.GroupInfo{})
}

// GetGroupInfo retrieves group information from the database by GroupID
func (r *GroupRepository) GetGroupInfo(groupID int64) (*models.GroupInfo, error) {
	var groupInfo models.GroupInfo
	result := r.db.Where("group_id = ?", groupID).First(&groupInfo)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &groupInfo, nil
}

// CreateOrUpdateGroupInfo creates a new group info record or updates an existing one
func (r *GroupRepository) CreateOrUpdateGroupInfo(groupInfo *models.GroupInfo) error {
	var existing models.GroupInfo
	result := r.db.Where("group_id = ?", groupInfo.GroupID).First(&existing)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			groupInfo.CreatedAt = time.Now()
			groupInfo.UpdatedAt = time.Now()
			return r.db.Create(groupInfo).Error
		}
		return result.Error
	}

	groupInfo.ID = existing.ID
	groupInfo.CreatedAt = existing.CreatedAt
	groupInfo.UpdatedAt = time.Now()

	return r.db.Save(groupInfo).Error
}

// GetAllGroupInfo retrieves all group information from the database
func (r *GroupRepository) GetAllGroupInfo() ([]*models.GroupInfo, error) {
	var groups []*models.GroupInfo
	result := r.db.Find(&groups)
	if result.Error != nil {
		return nil, result.Error
	}
	return groups, nil
}

// DeleteGroupInfo removes a group info record from the database by GroupID
func (r *GroupRepository) DeleteGroupInfo(groupID int64) error {
	return r.db.Where("group_id = ?", groupID).Delete(&models.GroupInfo{}).Error
}

// LoadGroups loads all groups from the database into the in-memory cache.
func (r *GroupRepository) LoadGroups(manager *models.GroupInfoManager) error {
	groups, err := r.GetAllGroupInfo()
	if err != nil {
		return err
	}

	for _, group := range groups {
		manager.AddGroupInfo(group)
	}

	logger.Infof("Loaded %d groups from database into cache", len(groups))
	return nil
}
