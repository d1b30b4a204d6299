package repository

import (
	"context"
	"time"

	"chatgraph/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sqlMessageRepository struct {
	db *gorm.DB
}

// NewSQLMessageRepository returns the relational MessageRepository.
func NewSQLMessageRepository(db *gorm.DB) MessageRepository {
	return &sqlMessageRepository{db: db}
}

func withReceipts(db *gorm.DB) *gorm.DB {
	return db.Preload("ReadBy", func(db *gorm.DB) *gorm.DB {
		return db.Order("read_at ASC")
	})
}

func (r *sqlMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	ctx, done := track(ctx, sqlStore, "message_create")
	defer done()

	prepareMessage(msg)
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *sqlMessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	return r.getByID(r.db.WithContext(ctx), id)
}

func (r *sqlMessageRepository) getByID(db *gorm.DB, id string) (*models.Message, error) {
	var msg models.Message
	if err := withReceipts(db).First(&msg, "id = ?", id).Error; err != nil {
		return nil, wrapDBError(err, "Message", id)
	}
	return &msg, nil
}

func (r *sqlMessageRepository) Delete(ctx context.Context, id string) (*models.Message, error) {
	var msg *models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if msg, err = r.getByID(tx, id); err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.ReadReceipt{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Message{}).Error
	})
	if err != nil {
		return nil, wrapDBError(err, "Message", id)
	}
	return msg, nil
}

func (r *sqlMessageRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	ctx, done := track(ctx, sqlStore, "message_delete_by_room")
	defer done()

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&models.Message{}).Select("id").Where("room_id = ?", roomID)
		if err := tx.Where("message_id IN (?)", ids).Delete(&models.ReadReceipt{}).Error; err != nil {
			return err
		}
		res := tx.Where("room_id = ?", roomID).Delete(&models.Message{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return deleted, nil
}

func (r *sqlMessageRepository) ListByRoom(ctx context.Context, roomID string, limit, skip int) ([]models.Message, error) {
	ctx, done := track(ctx, sqlStore, "message_list")
	defer done()

	var msgs []models.Message
	if err := withReceipts(r.db.WithContext(ctx)).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(skip).
		Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

func (r *sqlMessageRepository) AdvanceStatus(ctx context.Context, id string, target models.MessageStatus) (*models.Message, bool, error) {
	var (
		msg     *models.Message
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if below := target.Below(); len(below) > 0 {
			res := tx.Model(&models.Message{}).
				Where("id = ? AND status IN ?", id, below).
				Updates(map[string]any{"status": target, "updated_at": now()})
			if res.Error != nil {
				return res.Error
			}
			changed = res.RowsAffected == 1
		}
		var err error
		msg, err = r.getByID(tx, id)
		return err
	})
	if err != nil {
		return nil, false, wrapDBError(err, "Message", id)
	}
	return msg, changed, nil
}

func (r *sqlMessageRepository) MarkRead(ctx context.Context, id, readerID string, at time.Time) (*models.Message, bool, error) {
	var (
		msg     *models.Message
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getByID(tx, id); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ReadReceipt{MessageID: id, UserID: readerID, ReadAt: at})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected == 1

		res = tx.Model(&models.Message{}).
			Where("id = ? AND status <> ?", id, models.MessageStatusRead).
			Updates(map[string]any{"status": models.MessageStatusRead, "updated_at": now()})
		if res.Error != nil {
			return res.Error
		}
		changed = changed || res.RowsAffected == 1

		var err error
		msg, err = r.getByID(tx, id)
		return err
	})
	if err != nil {
		return nil, false, wrapDBError(err, "Message", id)
	}
	return msg, changed, nil
}

func (r *sqlMessageRepository) LatestByRooms(ctx context.Context, roomIDs []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	var msgs []models.Message
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, room_id, sender_id, content, status, created_at, updated_at FROM (
			SELECT m.*, ROW_NUMBER() OVER (PARTITION BY room_id ORDER BY created_at DESC, id DESC) AS rn
			FROM messages m
			WHERE room_id IN ?
		) ranked
		WHERE rn = 1`, roomIDs).Scan(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range msgs {
		msgs[i].ReadBy = []models.ReadReceipt{}
		out[msgs[i].RoomID] = &msgs[i]
	}
	return out, nil
}
