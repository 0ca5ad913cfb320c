package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrResumeNotFound 表示简历不存在或不属于当前用户。
var ErrResumeNotFound = errors.New("resume not found")

// withUserLock 在事务内锁定用户行，串行化同一用户的主简历变更。
// SQLite 方言会忽略 FOR UPDATE，此时由单连接池保证串行。
func withUserLock(ctx context.Context, db *gorm.DB, userID uint, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&owner, userID).Error; err != nil {
			return fmt.Errorf("lock user %d: %w", userID, err)
		}
		return fn(tx)
	})
}

func demotePrimary(tx *gorm.DB, userID, exceptID uint) error {
	query := tx.Model(&Resume{}).Where("user_id = ? AND is_primary = ?", userID, true)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Update("is_primary", false).Error; err != nil {
		return fmt.Errorf("demote primary resume: %w", err)
	}
	return nil
}

// FindResumeForUser 按 ID 与所属用户查询简历。
func FindResumeForUser(ctx context.Context, db *gorm.DB, userID, resumeID uint) (*Resume, error) {
	var resume Resume
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&resume).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResumeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resume, nil
}

// FindPrimaryResume 返回用户当前的主简历。
func FindPrimaryResume(ctx context.Context, db *gorm.DB, userID uint) (*Resume, error) {
	var resume Resume
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_primary = ?", userID, true).
		First(&resume).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResumeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resume, nil
}

// ListResumes 列出用户全部简历，主简历在前，其余按更新时间倒序。
func ListResumes(ctx context.Context, db *gorm.DB, userID uint) ([]Resume, error) {
	var resumes []Resume
	if err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC").
		Order("updated_at DESC").
		Order("id DESC").
		Find(&resumes).Error; err != nil {
		return nil, err
	}
	return resumes, nil
}

// CreateResume 保存简历；若 IsPrimary 为真，在同一事务中先降级原主简历。
func CreateResume(ctx context.Context, db *gorm.DB, resume *Resume) error {
	return withUserLock(ctx, db, resume.UserID, func(tx *gorm.DB) error {
		if resume.IsPrimary {
			if err := demotePrimary(tx, resume.UserID, 0); err != nil {
				return err
			}
		}
		if err := tx.Create(resume).Error; err != nil {
			return fmt.Errorf("create resume: %w", err)
		}
		return nil
	})
}

// CreateUploadedResume 保存上传的简历；用户尚无主简历时自动设为主简历。
func CreateUploadedResume(ctx context.Context, db *gorm.DB, resume *Resume) error {
	return withUserLock(ctx, db, resume.UserID, func(tx *gorm.DB) error {
		var primaries int64
		if err := tx.Model(&Resume{}).
			Where("user_id = ? AND is_primary = ?", resume.UserID, true).
			Count(&primaries).Error; err != nil {
			return fmt.Errorf("count primary resumes: %w", err)
		}
		resume.IsPrimary = primaries == 0
		if err := tx.Create(resume).Error; err != nil {
			return fmt.Errorf("create resume: %w", err)
		}
		return nil
	})
}

// ResumeUpdate 描述一次部分更新；nil 字段保持不变。
type ResumeUpdate struct {
	Content   *string
	Format    *string
	IsPrimary *bool
	FileKey   *string
	FileURL   *string
}

// UpdateResume 原子地应用更新；设为主简历时降级与升级在同一事务内完成。
func UpdateResume(ctx context.Context, db *gorm.DB, userID, resumeID uint, update ResumeUpdate) (*Resume, error) {
	var result Resume
	err := withUserLock(ctx, db, userID, func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", resumeID, userID).First(&result).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrResumeNotFound
			}
			return err
		}

		if update.IsPrimary != nil && *update.IsPrimary {
			if err := demotePrimary(tx, userID, resumeID); err != nil {
				return err
			}
		}

		changes := map[string]any{}
		if update.Content != nil {
			changes["content"] = *update.Content
		}
		if update.Format != nil {
			changes["format"] = *update.Format
		}
		if update.IsPrimary != nil {
			changes["is_primary"] = *update.IsPrimary
		}
		if update.FileKey != nil {
			changes["file_key"] = *update.FileKey
		}
		if update.FileURL != nil {
			changes["file_url"] = *update.FileURL
		}
		if len(changes) > 0 {
			if err := tx.Model(&result).Updates(changes).Error; err != nil {
				return fmt.Errorf("update resume: %w", err)
			}
		}
		return tx.First(&result, resumeID).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetPrimaryResume 在一个事务中降级其他简历并升级目标简历。
func SetPrimaryResume(ctx context.Context, db *gorm.DB, userID, resumeID uint) (*Resume, error) {
	primary := true
	return UpdateResume(ctx, db, userID, resumeID, ResumeUpdate{IsPrimary: &primary})
}

// DeleteResume 物理删除简历并返回被删除的记录，便于调用方清理文件。
func DeleteResume(ctx context.Context, db *gorm.DB, userID, resumeID uint) (*Resume, error) {
	resume, err := FindResumeForUser(ctx, db, userID, resumeID)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(&Resume{}, resume.ID).Error; err != nil {
		return nil, fmt.Errorf("delete resume: %w", err)
	}
	return resume, nil
}
