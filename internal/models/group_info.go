package models

import (
	"fmt"
	"sync"
	"time"
)

// GroupInfo holds per-group bot settings. Mirrored in memory by
// GroupInfoManager; the database copy is the source of truth.
type GroupInfo struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time

	GroupID   int64  `gorm:"uniqueIndex;not null"`
	GroupName string `gorm:"type:varchar(255)"`
	GroupLink string `gorm:"type:varchar(255)"`
	IsAdmin   bool   `gorm:"default:false"`
	AdminID   int64
}

func (g *GroupInfo) GetLinkedGroupName() string {
	return fmt.Sprintf("<a href=\"%s\">%s</a>", g.GroupLink, g.GroupName)
}

// GroupInfoManager is an in-process read cache over the group_infos table.
type GroupInfoManager struct {
	groups map[int64]*GroupInfo
	mu     sync.RWMutex
}

func NewGroupInfoManager() *GroupInfoManager {
	return &GroupInfoManager{
		groups: make(map[int64]*GroupInfo),
	}
}

func (g *GroupInfoManager) GetGroupInfo(chatID int64) *GroupInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groups[chatID]
}

func (g *GroupInfoManager) AddGroupInfo(groupInfo *GroupInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[groupInfo.GroupID] = groupInfo
}

func (g *GroupInfoManager) RemoveGroupInfo(groupID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, groupID)
}
