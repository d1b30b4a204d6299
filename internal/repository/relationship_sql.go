package repository

import (
	"context"
	"errors"

	"chatgraph/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sqlStore = "sql"

// sqlRelationshipRepository stores the graph as adjacency tables. The
// friendships primary key admits one row per unordered pair and
// chat_rooms.private_key admits one private room per pair.
type sqlRelationshipRepository struct {
	db *gorm.DB
}

// NewSQLRelationshipRepository returns the relational RelationshipRepository.
func NewSQLRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &sqlRelationshipRepository{db: db}
}

// EnsureUser is a no-op: users already live in SQL.
func (r *sqlRelationshipRepository) EnsureUser(context.Context, string) error {
	return nil
}

func (r *sqlRelationshipRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	ctx, done := track(ctx, sqlStore, "are_friends")
	defer done()
	ok, err := areFriends(r.db.WithContext(ctx), a, b)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return ok, nil
}

func (r *sqlRelationshipRepository) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	ctx, done := track(ctx, sqlStore, "is_member")
	defer done()
	m, err := findMember(r.db.WithContext(ctx), roomID, userID)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return m != nil, nil
}

func (r *sqlRelationshipRepository) IsAdmin(ctx context.Context, userID, roomID string) (bool, error) {
	ctx, done := track(ctx, sqlStore, "is_admin")
	defer done()
	m, err := findMember(r.db.WithContext(ctx), roomID, userID)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return m != nil && m.IsAdmin, nil
}

func (r *sqlRelationshipRepository) GetRoom(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, wrapDBError(err, "Room", roomID)
	}
	return &room, nil
}

func (r *sqlRelationshipRepository) FindPrivateRoom(ctx context.Context, a, b string) (*models.ChatRoom, error) {
	room, err := findPrivateRoom(r.db.WithContext(ctx), a, b)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return room, nil
}

func (r *sqlRelationshipRepository) GetOrCreatePrivateRoom(ctx context.Context, a, b string) (*models.ChatRoom, bool, error) {
	ctx, done := track(ctx, sqlStore, "get_or_create_private_room")
	defer done()

	var (
		room    models.ChatRoom
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := areFriends(tx, a, b)
		if err != nil {
			return err
		}
		if !ok {
			return errNotFriends()
		}

		key := models.PairKey(a, b)
		candidate := models.ChatRoom{
			ID:         uuid.NewString(),
			Name:       models.PrivateRoomName,
			PrivateKey: &key,
			CreatedAt:  now(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1

		if err := tx.Where("private_key = ?", key).First(&room).Error; err != nil {
			return err
		}
		if !created {
			return nil
		}
		members := []models.RoomMember{
			{RoomID: room.ID, UserID: a, CreatedAt: room.CreatedAt},
			{RoomID: room.ID, UserID: b, CreatedAt: room.CreatedAt},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		return nil, false, wrapDBError(err, "Room", models.PairKey(a, b))
	}
	return &room, created, nil
}

func (r *sqlRelationshipRepository) DeletePrivateRoom(ctx context.Context, a, b string) (string, error) {
	var roomID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := findPrivateRoom(tx, a, b)
		if err != nil {
			return err
		}
		if room == nil {
			return models.NewNotFoundError("Private room", models.PairKey(a, b))
		}
		roomID = room.ID
		return deleteRoom(tx, room.ID)
	})
	if err != nil {
		return "", wrapDBError(err, "Room", models.PairKey(a, b))
	}
	return roomID, nil
}

func (r *sqlRelationshipRepository) CreateGroup(ctx context.Context, creatorID, name string, candidateIDs []string) (*models.ChatRoom, []string, error) {
	ctx, done := track(ctx, sqlStore, "create_group")
	defer done()

	room := models.ChatRoom{ID: uuid.NewString(), Name: name, IsGroup: true, CreatedAt: now()}
	var added []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		friends, err := friendIDs(tx, creatorID)
		if err != nil {
			return err
		}
		isFriend := make(map[string]bool, len(friends))
		for _, id := range friends {
			isFriend[id] = true
		}

		seen := map[string]bool{creatorID: true}
		members := []models.RoomMember{{RoomID: room.ID, UserID: creatorID, IsAdmin: true, CreatedAt: room.CreatedAt}}
		for _, id := range candidateIDs {
			if seen[id] || !isFriend[id] {
				continue
			}
			seen[id] = true
			added = append(added, id)
			members = append(members, models.RoomMember{RoomID: room.ID, UserID: id, CreatedAt: room.CreatedAt})
		}

		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, nil, wrapDBError(err, "Group", room.ID)
	}
	return &room, added, nil
}

func (r *sqlRelationshipRepository) LeaveGroup(ctx context.Context, userID, groupID string) (bool, error) {
	var dissolved bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		me, err := findMember(tx, groupID, userID)
		if err != nil {
			return err
		}
		if me == nil {
			return errNotMember()
		}

		var members int64
		if err := tx.Model(&models.RoomMember{}).Where("room_id = ?", groupID).Count(&members).Error; err != nil {
			return err
		}
		if members == 1 {
			dissolved = true
			return deleteRoom(tx, groupID)
		}
		if me.IsAdmin {
			admins, err := countAdmins(tx, groupID)
			if err != nil {
				return err
			}
			if admins == 1 {
				return errSoleAdmin()
			}
		}
		return tx.Where("room_id = ? AND user_id = ?", groupID, userID).Delete(&models.RoomMember{}).Error
	})
	if err != nil {
		return false, wrapDBError(err, "Group", groupID)
	}
	return dissolved, nil
}

func (r *sqlRelationshipRepository) DeleteGroup(ctx context.Context, actorID, groupID string) ([]string, error) {
	var former []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		if err := requireAdmin(tx, groupID, actorID); err != nil {
			return err
		}
		if err := tx.Model(&models.RoomMember{}).Where("room_id = ?", groupID).
			Order("created_at ASC").Pluck("user_id", &former).Error; err != nil {
			return err
		}
		return deleteRoom(tx, groupID)
	})
	if err != nil {
		return nil, wrapDBError(err, "Group", groupID)
	}
	return former, nil
}

func (r *sqlRelationshipRepository) AddMember(ctx context.Context, actorID, groupID, targetID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		if err := requireAdmin(tx, groupID, actorID); err != nil {
			return err
		}
		ok, err := areFriends(tx, actorID, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return errNotFriends()
		}
		existing, err := findMember(tx, groupID, targetID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errAlreadyMember()
		}
		return tx.Create(&models.RoomMember{RoomID: groupID, UserID: targetID, CreatedAt: now()}).Error
	})
	return wrapDBError(err, "Group", groupID)
}

func (r *sqlRelationshipRepository) RemoveMember(ctx context.Context, actorID, groupID, targetID string) error {
	if actorID == targetID {
		return errRemoveSelf()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		if err := requireAdmin(tx, groupID, actorID); err != nil {
			return err
		}
		res := tx.Where("room_id = ? AND user_id = ?", groupID, targetID).Delete(&models.RoomMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errMemberNotFound(targetID)
		}
		return nil
	})
	return wrapDBError(err, "Group", groupID)
}

func (r *sqlRelationshipRepository) PromoteAdmin(ctx context.Context, actorID, groupID, targetID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		if err := requireAdmin(tx, groupID, actorID); err != nil {
			return err
		}
		target, err := findMember(tx, groupID, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return errMemberNotFound(targetID)
		}
		if target.IsAdmin {
			return errAlreadyAdmin()
		}
		return setAdmin(tx, groupID, targetID, true)
	})
	return wrapDBError(err, "Group", groupID)
}

func (r *sqlRelationshipRepository) DemoteAdmin(ctx context.Context, actorID, groupID, targetID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		if err := requireAdmin(tx, groupID, actorID); err != nil {
			return err
		}
		target, err := findMember(tx, groupID, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return errMemberNotFound(targetID)
		}
		if !target.IsAdmin {
			return errNotAnAdmin()
		}
		admins, err := countAdmins(tx, groupID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return errLastAdmin()
		}
		return setAdmin(tx, groupID, targetID, false)
	})
	return wrapDBError(err, "Group", groupID)
}

func (r *sqlRelationshipRepository) ListGroups(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := r.db.WithContext(ctx).
		Joins("JOIN room_members rm ON rm.room_id = chat_rooms.id").
		Where("rm.user_id = ? AND chat_rooms.is_group = ?", userID, true).
		Order("chat_rooms.created_at DESC").
		Find(&rooms).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rooms, nil
}

func (r *sqlRelationshipRepository) ListMembers(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, userID, groupID, false, func(q *gorm.DB) *gorm.DB {
		return q.Where("user_id <> ?", userID)
	})
}

func (r *sqlRelationshipRepository) ListAdmins(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, userID, groupID, false, func(q *gorm.DB) *gorm.DB {
		return q.Where("is_admin = ?", true)
	})
}

func (r *sqlRelationshipRepository) ListAdminsToRemove(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, userID, groupID, true, func(q *gorm.DB) *gorm.DB {
		return q.Where("is_admin = ? AND user_id <> ?", true, userID)
	})
}

func (r *sqlRelationshipRepository) ListNonAdmins(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, userID, groupID, false, func(q *gorm.DB) *gorm.DB {
		return q.Where("is_admin = ?", false)
	})
}

func (r *sqlRelationshipRepository) listMemberIDs(ctx context.Context, userID, groupID string, adminOnly bool, scope func(*gorm.DB) *gorm.DB) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		if adminOnly {
			if err := requireAdmin(tx, groupID, userID); err != nil {
				return err
			}
		} else if err := requireMember(tx, groupID, userID); err != nil {
			return err
		}
		q := tx.Model(&models.RoomMember{}).Where("room_id = ?", groupID)
		return scope(q).Order("created_at ASC").Pluck("user_id", &ids).Error
	})
	if err != nil {
		return nil, wrapDBError(err, "Group", groupID)
	}
	return ids, nil
}

func (r *sqlRelationshipRepository) ListFriends(ctx context.Context, userID string) ([]models.FriendEntry, error) {
	ctx, done := track(ctx, sqlStore, "list_friends")
	defer done()

	db := r.db.WithContext(ctx)
	ids, err := friendIDs(db, userID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(ids) == 0 {
		return []models.FriendEntry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = models.PairKey(userID, id)
	}
	var rooms []models.ChatRoom
	if err := db.Where("private_key IN ?", keys).Find(&rooms).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	roomByKey := make(map[string]string, len(rooms))
	for _, room := range rooms {
		if room.PrivateKey != nil {
			roomByKey[*room.PrivateKey] = room.ID
		}
	}

	out := make([]models.FriendEntry, len(ids))
	for i, id := range ids {
		out[i] = models.FriendEntry{UserID: id, RoomID: roomByKey[keys[i]]}
	}
	return out, nil
}

func (r *sqlRelationshipRepository) ListSentRequests(ctx context.Context, userID string) ([]string, error) {
	var rows []models.Friendship
	if err := r.db.WithContext(ctx).
		Where("requester_id = ? AND status = ?", userID, models.FriendshipStatusPending).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return otherEnds(rows, userID), nil
}

func (r *sqlRelationshipRepository) ListReceivedRequests(ctx context.Context, userID string) ([]string, error) {
	var rows []models.Friendship
	if err := r.db.WithContext(ctx).
		Where("(user_low = ? OR user_high = ?) AND requester_id <> ? AND status = ?",
			userID, userID, userID, models.FriendshipStatusPending).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return otherEnds(rows, userID), nil
}

func (r *sqlRelationshipRepository) RelationStatus(ctx context.Context, self, other string) (models.RequestStatus, error) {
	f, err := findFriendship(r.db.WithContext(ctx), self, other)
	if err != nil {
		return models.RequestStatusNone, models.NewInternalError(err)
	}
	return f.StatusFor(self), nil
}

func (r *sqlRelationshipRepository) RelationStatuses(ctx context.Context, self string, others []string) (map[string]models.RequestStatus, error) {
	out := make(map[string]models.RequestStatus, len(others))
	for _, id := range others {
		out[id] = models.RequestStatusNone
	}
	if len(others) == 0 {
		return out, nil
	}
	var rows []models.Friendship
	if err := r.db.WithContext(ctx).
		Where("(user_low = ? AND user_high IN ?) OR (user_high = ? AND user_low IN ?)", self, others, self, others).
		Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range rows {
		out[rows[i].Other(self)] = rows[i].StatusFor(self)
	}
	return out, nil
}

func (r *sqlRelationshipRepository) SendRequest(ctx context.Context, from, to string) error {
	ctx, done := track(ctx, sqlStore, "send_request")
	defer done()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findFriendship(tx, from, to)
		if err != nil {
			return err
		}
		if existing != nil {
			return errRelationExists()
		}
		lo, hi := models.OrderedPair(from, to)
		return tx.Create(&models.Friendship{
			UserLow:     lo,
			UserHigh:    hi,
			RequesterID: from,
			Status:      models.FriendshipStatusPending,
		}).Error
	})
	if isUniqueConstraintError(err) {
		return errRelationExists()
	}
	return wrapDBError(err, "Friendship", models.PairKey(from, to))
}

func (r *sqlRelationshipRepository) CancelRequest(ctx context.Context, from, to string) error {
	return r.dropPending(ctx, from, to)
}

func (r *sqlRelationshipRepository) RejectRequest(ctx context.Context, receiver, sender string) error {
	return r.dropPending(ctx, sender, receiver)
}

func (r *sqlRelationshipRepository) dropPending(ctx context.Context, from, to string) error {
	lo, hi := models.OrderedPair(from, to)
	res := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ? AND requester_id = ? AND status = ?",
			lo, hi, from, models.FriendshipStatusPending).
		Delete(&models.Friendship{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errRequestNotFound(from, to)
	}
	return nil
}

func (r *sqlRelationshipRepository) AcceptRequest(ctx context.Context, receiver, sender string) error {
	lo, hi := models.OrderedPair(sender, receiver)
	res := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("user_low = ? AND user_high = ? AND requester_id = ? AND status = ?",
			lo, hi, sender, models.FriendshipStatusPending).
		Updates(map[string]any{"status": models.FriendshipStatusAccepted, "updated_at": now()})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errRequestNotFound(sender, receiver)
	}
	return nil
}

func (r *sqlRelationshipRepository) DetachFriendship(ctx context.Context, a, b string) (*models.Detachment, error) {
	ctx, done := track(ctx, sqlStore, "detach_friendship")
	defer done()

	var d models.Detachment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lo, hi := models.OrderedPair(a, b)
		res := tx.Where("user_low = ? AND user_high = ? AND status = ?", lo, hi, models.FriendshipStatusAccepted).
			Delete(&models.Friendship{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errFriendshipNotFound(a, b)
		}

		room, err := findPrivateRoom(tx, a, b)
		if err != nil {
			return err
		}
		if room == nil {
			return nil
		}
		d.RoomID = room.ID
		d.RoomCreatedAt = room.CreatedAt
		return deleteRoom(tx, room.ID)
	})
	if err != nil {
		return nil, wrapDBError(err, "Friendship", models.PairKey(a, b))
	}
	return &d, nil
}

func (r *sqlRelationshipRepository) RestoreFriendship(ctx context.Context, a, b string, d *models.Detachment) error {
	ctx, done := track(ctx, sqlStore, "restore_friendship")
	defer done()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lo, hi := models.OrderedPair(a, b)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Friendship{
			UserLow:     lo,
			UserHigh:    hi,
			RequesterID: a,
			Status:      models.FriendshipStatusAccepted,
		}).Error; err != nil {
			return err
		}
		if d == nil || d.RoomID == "" {
			return nil
		}
		key := models.PairKey(a, b)
		room := models.ChatRoom{
			ID:         d.RoomID,
			Name:       models.PrivateRoomName,
			PrivateKey: &key,
			CreatedAt:  d.RoomCreatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&room).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&[]models.RoomMember{
			{RoomID: d.RoomID, UserID: a, CreatedAt: d.RoomCreatedAt},
			{RoomID: d.RoomID, UserID: b, CreatedAt: d.RoomCreatedAt},
		}).Error
	})
	return wrapDBError(err, "Friendship", models.PairKey(a, b))
}

func (r *sqlRelationshipRepository) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	db := r.db.WithContext(ctx)
	stats := &models.UserStats{}

	var friends int64
	if err := db.Model(&models.Friendship{}).
		Where("(user_low = ? OR user_high = ?) AND status = ?", userID, userID, models.FriendshipStatusAccepted).
		Count(&friends).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	stats.FriendsCount = int(friends)

	var groups int64
	if err := db.Model(&models.RoomMember{}).
		Joins("JOIN chat_rooms cr ON cr.id = room_members.room_id").
		Where("room_members.user_id = ? AND cr.is_group = ?", userID, true).
		Count(&groups).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	stats.GroupsCount = int(groups)

	var prefs []string
	if err := db.Model(&models.UserAnswer{}).
		Joins("JOIN question_options qo ON qo.id = user_answers.option_id").
		Where("user_answers.user_id = ?", userID).
		Order("user_answers.created_at DESC").
		Limit(1).
		Pluck("qo.value", &prefs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(prefs) > 0 {
		stats.Preference = prefs[0]
	}
	return stats, nil
}

type userCount struct {
	UserID string
	N      int
}

func (r *sqlRelationshipRepository) Suggestions(ctx context.Context, userID string, limit int) ([]models.ScoredUser, error) {
	ctx, done := track(ctx, sqlStore, "suggestions")
	defer done()

	db := r.db.WithContext(ctx)

	var related []models.Friendship
	if err := db.Where("user_low = ? OR user_high = ?", userID, userID).Find(&related).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	excluded := map[string]bool{userID: true}
	var friends []string
	for i := range related {
		other := related[i].Other(userID)
		excluded[other] = true
		if related[i].Status == models.FriendshipStatusAccepted {
			friends = append(friends, other)
		}
	}

	var shared []userCount
	if err := db.Table("user_answers AS mine").
		Select("theirs.user_id AS user_id, COUNT(*) AS n").
		Joins("JOIN user_answers AS theirs ON theirs.option_id = mine.option_id AND theirs.user_id <> mine.user_id").
		Where("mine.user_id = ?", userID).
		Group("theirs.user_id").
		Scan(&shared).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	interest := make(map[string]int, len(shared))
	for _, s := range shared {
		interest[s.UserID] = s.N
	}

	mutual := map[string]int{}
	if len(friends) > 0 {
		isFriend := make(map[string]bool, len(friends))
		for _, id := range friends {
			isFriend[id] = true
		}
		var second []models.Friendship
		if err := db.Where("status = ? AND (user_low IN ? OR user_high IN ?)",
			models.FriendshipStatusAccepted, friends, friends).
			Find(&second).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		via := map[string]map[string]bool{}
		link := func(candidate, through string) {
			if candidate == userID {
				return
			}
			if via[candidate] == nil {
				via[candidate] = map[string]bool{}
			}
			via[candidate][through] = true
		}
		for _, f := range second {
			if isFriend[f.UserLow] {
				link(f.UserHigh, f.UserLow)
			}
			if isFriend[f.UserHigh] {
				link(f.UserLow, f.UserHigh)
			}
		}
		for id, mfs := range via {
			mutual[id] = len(mfs)
		}
	}

	return scoreSuggestions(interest, mutual, excluded, limit), nil
}

func (r *sqlRelationshipRepository) ListQuestions(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("id ASC").
		Find(&questions).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return questions, nil
}

// SubmitAnswer replaces any earlier answer to the option's question.
func (r *sqlRelationshipRepository) SubmitAnswer(ctx context.Context, userID, optionID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var opt models.Option
		if err := tx.First(&opt, "id = ?", optionID).Error; err != nil {
			return wrapDBError(err, "Option", optionID)
		}
		answer := models.UserAnswer{UserID: userID, QuestionID: opt.QuestionID, OptionID: opt.ID, CreatedAt: now()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"option_id", "created_at"}),
		}).Create(&answer).Error
	})
	return wrapDBError(err, "Option", optionID)
}

func (r *sqlRelationshipRepository) UpsertQuestion(ctx context.Context, q *models.Question) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text"}),
		}).Omit("Options").Create(q).Error; err != nil {
			return err
		}
		for i := range q.Options {
			q.Options[i].QuestionID = q.ID
		}
		if len(q.Options) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"question_id", "value"}),
		}).Create(&q.Options).Error
	})
	return wrapDBError(err, "Question", q.ID)
}

func areFriends(db *gorm.DB, a, b string) (bool, error) {
	f, err := findFriendship(db, a, b)
	if err != nil {
		return false, err
	}
	return f != nil && f.Status == models.FriendshipStatusAccepted, nil
}

func findFriendship(db *gorm.DB, a, b string) (*models.Friendship, error) {
	lo, hi := models.OrderedPair(a, b)
	var f models.Friendship
	if err := db.Where("user_low = ? AND user_high = ?", lo, hi).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func friendIDs(db *gorm.DB, userID string) ([]string, error) {
	var rows []models.Friendship
	if err := db.Where("(user_low = ? OR user_high = ?) AND status = ?", userID, userID, models.FriendshipStatusAccepted).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return otherEnds(rows, userID), nil
}

func otherEnds(rows []models.Friendship, userID string) []string {
	out := make([]string, len(rows))
	for i := range rows {
		out[i] = rows[i].Other(userID)
	}
	return out
}

func findPrivateRoom(db *gorm.DB, a, b string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := db.Where("private_key = ?", models.PairKey(a, b)).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

func findMember(db *gorm.DB, roomID, userID string) (*models.RoomMember, error) {
	var m models.RoomMember
	if err := db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func loadGroup(tx *gorm.DB, groupID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := tx.First(&room, "id = ? AND is_group = ?", groupID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errGroupNotFound(groupID)
		}
		return nil, err
	}
	return &room, nil
}

func requireMember(tx *gorm.DB, roomID, userID string) error {
	m, err := findMember(tx, roomID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return errNotMember()
	}
	return nil
}

func requireAdmin(tx *gorm.DB, roomID, userID string) error {
	m, err := findMember(tx, roomID, userID)
	if err != nil {
		return err
	}
	if m == nil || !m.IsAdmin {
		return errNotAdmin()
	}
	return nil
}

func countAdmins(tx *gorm.DB, roomID string) (int64, error) {
	var n int64
	err := tx.Model(&models.RoomMember{}).Where("room_id = ? AND is_admin = ?", roomID, true).Count(&n).Error
	return n, err
}

func setAdmin(tx *gorm.DB, roomID, userID string, admin bool) error {
	return tx.Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("is_admin", admin).Error
}

func deleteRoom(tx *gorm.DB, roomID string) error {
	if err := tx.Where("room_id = ?", roomID).Delete(&models.RoomMember{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", roomID).Delete(&models.ChatRoom{}).Error
}
