package repository

import (
	"context"
	"errors"
	"time"

	"chatgraph/internal/graphdb"
	"chatgraph/internal/models"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const neo4jStore = "neo4j"

// neo4jRelationshipRepository keeps the social graph in Neo4j using the
// labels User, ChatRoom, Question and Option.
type neo4jRelationshipRepository struct {
	client *graphdb.Client
}

// NewNeo4jRelationshipRepository returns the graph-backed RelationshipRepository.
func NewNeo4jRelationshipRepository(client *graphdb.Client) RelationshipRepository {
	return &neo4jRelationshipRepository{client: client}
}

func (r *neo4jRelationshipRepository) write(ctx context.Context, op string, work func(ctx context.Context, tx neo4j.ManagedTransaction) error) error {
	ctx, done := track(ctx, neo4jStore, op)
	defer done()

	session := r.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(ctx, tx)
	})
	return graphError(err)
}

func (r *neo4jRelationshipRepository) read(ctx context.Context, op string, work func(ctx context.Context, tx neo4j.ManagedTransaction) error) error {
	ctx, done := track(ctx, neo4jStore, op)
	defer done()

	session := r.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(ctx, tx)
	})
	return graphError(err)
}

func graphError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return models.NewInternalError(err)
}

func (r *neo4jRelationshipRepository) EnsureUser(ctx context.Context, userID string) error {
	return r.write(ctx, "ensure_user", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, `MERGE (:User {userId: $userId})`, map[string]any{"userId": userID})
		return err
	})
}

func (r *neo4jRelationshipRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var ok bool
	err := r.read(ctx, "are_friends", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		var err error
		ok, err = friendsTx(ctx, tx, a, b)
		return err
	})
	return ok, err
}

func (r *neo4jRelationshipRepository) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	var member bool
	err := r.read(ctx, "is_member", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		var err error
		member, _, err = membershipTx(ctx, tx, roomID, userID)
		return err
	})
	return member, err
}

func (r *neo4jRelationshipRepository) IsAdmin(ctx context.Context, userID, roomID string) (bool, error) {
	var admin bool
	err := r.read(ctx, "is_admin", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		var err error
		_, admin, err = membershipTx(ctx, tx, roomID, userID)
		return err
	})
	return admin, err
}

func (r *neo4jRelationshipRepository) GetRoom(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	var room *models.ChatRoom
	err := r.read(ctx, "get_room", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (r:ChatRoom {id: $id})
			RETURN r.id AS id, r.name AS name, r.isGroup AS isGroup, r.createdAt AS createdAt`,
			map[string]any{"id": roomID})
		if err != nil {
			return err
		}
		if res.Next(ctx) {
			room = roomFromRecord(res.Record())
			return nil
		}
		if err := res.Err(); err != nil {
			return err
		}
		return models.NewNotFoundError("Room", roomID)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *neo4jRelationshipRepository) FindPrivateRoom(ctx context.Context, a, b string) (*models.ChatRoom, error) {
	var room *models.ChatRoom
	err := r.read(ctx, "find_private_room", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (r:ChatRoom {privateKey: $key})
			RETURN r.id AS id, r.name AS name, r.isGroup AS isGroup, r.createdAt AS createdAt`,
			map[string]any{"key": models.PairKey(a, b)})
		if err != nil {
			return err
		}
		if res.Next(ctx) {
			room = roomFromRecord(res.Record())
		}
		return res.Err()
	})
	return room, err
}

// GetOrCreatePrivateRoom merges on the pair key; the uniqueness constraint on
// privateKey makes concurrent callers converge on one room.
func (r *neo4jRelationshipRepository) GetOrCreatePrivateRoom(ctx context.Context, a, b string) (*models.ChatRoom, bool, error) {
	var (
		room    *models.ChatRoom
		created bool
	)
	err := r.write(ctx, "get_or_create_private_room", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		ok, err := friendsTx(ctx, tx, a, b)
		if err != nil {
			return err
		}
		if !ok {
			return errNotFriends()
		}

		candidate := uuid.NewString()
		res, err := tx.Run(ctx, `
			MATCH (a:User {userId: $a}), (b:User {userId: $b})
			MERGE (r:ChatRoom {privateKey: $key})
			ON CREATE SET r.id = $id, r.name = $name, r.isGroup = false, r.createdAt = $now
			MERGE (a)-[:HAS_MEMBER]->(r)
			MERGE (b)-[:HAS_MEMBER]->(r)
			RETURN r.id AS id, r.name AS name, r.isGroup AS isGroup, r.createdAt AS createdAt, r.id = $id AS created`,
			map[string]any{
				"a": a, "b": b,
				"key":  models.PairKey(a, b),
				"id":   candidate,
				"name": models.PrivateRoomName,
				"now":  now(),
			})
		if err != nil {
			return err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return err
		}
		room = roomFromRecord(rec)
		created = recBool(rec, "created")
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}

func (r *neo4jRelationshipRepository) DeletePrivateRoom(ctx context.Context, a, b string) (string, error) {
	var roomID string
	err := r.write(ctx, "delete_private_room", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (r:ChatRoom {privateKey: $key})
			WITH r, r.id AS id
			DETACH DELETE r
			RETURN id`,
			map[string]any{"key": models.PairKey(a, b)})
		if err != nil {
			return err
		}
		if res.Next(ctx) {
			roomID = recString(res.Record(), "id")
			return nil
		}
		if err := res.Err(); err != nil {
			return err
		}
		return models.NewNotFoundError("Private room", models.PairKey(a, b))
	})
	return roomID, err
}

func (r *neo4jRelationshipRepository) CreateGroup(ctx context.Context, creatorID, name string, candidateIDs []string) (*models.ChatRoom, []string, error) {
	room := &models.ChatRoom{ID: uuid.NewString(), Name: name, IsGroup: true, CreatedAt: now()}
	var added []string
	err := r.write(ctx, "create_group", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		added = nil
		res, err := tx.Run(ctx, `
			MATCH (me:User {userId: $creator})-[:FRIENDS_WITH]-(f:User)
			WHERE f.userId IN $candidates
			RETURN DISTINCT f.userId AS id`,
			map[string]any{"creator": creatorID, "candidates": candidateIDs})
		if err != nil {
			return err
		}
		friends, err := collectStrings(ctx, res, "id")
		if err != nil {
			return err
		}
		isFriend := make(map[string]bool, len(friends))
		for _, id := range friends {
			isFriend[id] = true
		}
		seen := map[string]bool{creatorID: true}
		for _, id := range candidateIDs {
			if seen[id] || !isFriend[id] {
				continue
			}
			seen[id] = true
			added = append(added, id)
		}

		_, err = tx.Run(ctx, `
			MERGE (me:User {userId: $creator})
			CREATE (r:ChatRoom {id: $id, name: $name, isGroup: true, createdAt: $now})
			CREATE (me)-[:HAS_MEMBER]->(r), (me)-[:IS_ADMIN_OF]->(r)
			WITH r
			UNWIND $members AS memberId
			MATCH (u:User {userId: memberId})
			CREATE (u)-[:HAS_MEMBER]->(r)`,
			map[string]any{
				"creator": creatorID,
				"id":      room.ID,
				"name":    room.Name,
				"now":     room.CreatedAt,
				"members": stringsOrEmpty(added),
			})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return room, added, nil
}

func (r *neo4jRelationshipRepository) LeaveGroup(ctx context.Context, userID, groupID string) (bool, error) {
	var dissolved bool
	err := r.write(ctx, "leave_group", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		dissolved = false
		if err := groupTx(ctx, tx, groupID); err != nil {
			return err
		}
		member, admin, err := membershipTx(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if !member {
			return errNotMember()
		}

		members, err := countTx(ctx, tx, `MATCH (:User)-[:HAS_MEMBER]->(:ChatRoom {id: $id}) RETURN count(*) AS n`, groupID)
		if err != nil {
			return err
		}
		if members == 1 {
			dissolved = true
			_, err := tx.Run(ctx, `MATCH (r:ChatRoom {id: $id}) DETACH DELETE r`, map[string]any{"id": groupID})
			return err
		}
		if admin {
			admins, err := countTx(ctx, tx, `MATCH (:User)-[:IS_ADMIN_OF]->(:ChatRoom {id: $id}) RETURN count(*) AS n`, groupID)
			if err != nil {
				return err
			}
			if admins == 1 {
				return errSoleAdmin()
			}
		}
		_, err = tx.Run(ctx, `
			MATCH (:User {userId: $userId})-[e:HAS_MEMBER|IS_ADMIN_OF]->(:ChatRoom {id: $id})
			DELETE e`,
			map[string]any{"userId": userID, "id": groupID})
		return err
	})
	return dissolved, err
}

func (r *neo4jRelationshipRepository) DeleteGroup(ctx context.Context, actorID, groupID string) ([]string, error) {
	var former []string
	err := r.write(ctx, "delete_group", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := groupTx(ctx, tx, groupID); err != nil {
			return err
		}
		if err := requireAdminTx(ctx, tx, groupID, actorID); err != nil {
			return err
		}
		res, err := tx.Run(ctx, `
			MATCH (u:User)-[:HAS_MEMBER]->(:ChatRoom {id: $id})
			RETURN u.userId AS id ORDER BY id`,
			map[string]any{"id": groupID})
		if err != nil {
			return err
		}
		if former, err = collectStrings(ctx, res, "id"); err != nil {
			return err
		}
		_, err = tx.Run(ctx, `MATCH (r:ChatRoom {id: $id}) DETACH DELETE r`, map[string]any{"id": groupID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return former, nil
}

func (r *neo4jRelationshipRepository) AddMember(ctx context.Context, actorID, groupID, targetID string) error {
	return r.write(ctx, "add_member", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := groupTx(ctx, tx, groupID); err != nil {
			return err
		}
		if err := requireAdminTx(ctx, tx, groupID, actorID); err != nil {
			return err
		}
		ok, err := friendsTx(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return errNotFriends()
		}
		member, _, err := membershipTx(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		if member {
			return errAlreadyMember()
		}
		_, err = tx.Run(ctx, `
			MATCH (u:User {userId: $userId}), (r:ChatRoom {id: $id})
			MERGE (u)-[:HAS_MEMBER]->(r)`,
			map[string]any{"userId": targetID, "id": groupID})
		return err
	})
}

func (r *neo4jRelationshipRepository) RemoveMember(ctx context.Context, actorID, groupID, targetID string) error {
	if actorID == targetID {
		return errRemoveSelf()
	}
	return r.write(ctx, "remove_member", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := groupTx(ctx, tx, groupID); err != nil {
			return err
		}
		if err := requireAdminTx(ctx, tx, groupID, actorID); err != nil {
			return err
		}
		member, _, err := membershipTx(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		if !member {
			return errMemberNotFound(targetID)
		}
		_, err = tx.Run(ctx, `
			MATCH (:User {userId: $userId})-[e:HAS_MEMBER|IS_ADMIN_OF]->(:ChatRoom {id: $id})
			DELETE e`,
			map[string]any{"userId": targetID, "id": groupID})
		return err
	})
}

func (r *neo4jRelationshipRepository) PromoteAdmin(ctx context.Context, actorID, groupID, targetID string) error {
	return r.write(ctx, "promote_admin", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := groupTx(ctx, tx, groupID); err != nil {
			return err
		}
		if err := requireAdminTx(ctx, tx, groupID, actorID); err != nil {
			return err
		}
		member, admin, err := membershipTx(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		if !member {
			return errMemberNotFound(targetID)
		}
		if admin {
			return errAlreadyAdmin()
		}
		_, err = tx.Run(ctx, `
			MATCH (u:User {userId: $userId}), (r:ChatRoom {id: $id})
			MERGE (u)-[:IS_ADMIN_OF]->(r)`,
			map[string]any{"userId": targetID, "id": groupID})
		return err
	})
}

func (r *neo4jRelationshipRepository) DemoteAdmin(ctx context.Context, actorID, groupID, targetID string) error {
	return r.write(ctx, "demote_admin", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := groupTx(ctx, tx, groupID); err != nil {
			return err
		}
		if err := requireAdminTx(ctx, tx, groupID, actorID); err != nil {
			return err
		}
		member, admin, err := membershipTx(ctx, tx, groupID, targetID)
		if err != nil {
			return err
		}
		if !member {
			return errMemberNotFound(targetID)
		}
		if !admin {
			return errNotAnAdmin()
		}
		admins, err := countTx(ctx, tx, `MATCH (:User)-[:IS_ADMIN_OF]->(:ChatRoom {id: $id}) RETURN count(*) AS n`, groupID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return errLastAdmin()
		}
		_, err = tx.Run(ctx, `
			MATCH (:User {userId: $userId})-[e:IS_ADMIN_OF]->(:ChatRoom {id: $id})
			DELETE e`,
			map[string]any{"userId": targetID, "id": groupID})
		return err
	})
}

func (r *neo4jRelationshipRepository) ListGroups(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := r.read(ctx, "list_groups", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (:User {userId: $userId})-[:HAS_MEMBER]->(r:ChatRoom {isGroup: true})
			RETURN r.id AS id, r.name AS name, r.isGroup AS isGroup, r.createdAt AS createdAt
			ORDER BY createdAt DESC`,
			map[string]any{"userId": userID})
		if err != nil {
			return err
		}
		rooms = rooms[:0]
		for res.Next(ctx) {
			rooms = append(rooms, *roomFromRecord(res.Record()))
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *neo4jRelationshipRepository) ListMembers(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, "list_members", userID, groupID, false, `
		MATCH (u:User)-[:HAS_MEMBER]->(:ChatRoom {id: $id})
		WHERE u.userId <> $userId
		RETURN u.userId AS id ORDER BY id`)
}

func (r *neo4jRelationshipRepository) ListAdmins(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, "list_admins", userID, groupID, false, `
		MATCH (u:User)-[:IS_ADMIN_OF]->(:ChatRoom {id: $id})
		RETURN u.userId AS id ORDER BY id`)
}

func (r *neo4jRelationshipRepository) ListAdminsToRemove(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, "list_admins_to_remove", userID, groupID, true, `
		MATCH (u:User)-[:IS_ADMIN_OF]->(:ChatRoom {id: $id})
		WHERE u.userId <> $userId
		RETURN u.userId AS id ORDER BY id`)
}

func (r *neo4jRelationshipRepository) ListNonAdmins(ctx context.Context, userID, groupID string) ([]string, error) {
	return r.listMemberIDs(ctx, "list_non_admins", userID, groupID, false, `
		MATCH (u:User)-[:HAS_MEMBER]->(g:ChatRoom {id: $id})
		WHERE NOT (u)-[:IS_ADMIN_OF]->(g)
		RETURN u.userId AS id ORDER BY id`)
}

func (r *neo4jRelationshipRepository) listMemberIDs(ctx context.Context, op, userID, groupID string, adminOnly bool, query string) ([]string, error) {
	var ids []string
	err := r.read(ctx, op, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := groupTx(ctx, tx, groupID); err != nil {
			return err
		}
		member, admin, err := membershipTx(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if adminOnly && !admin {
			return errNotAdmin()
		}
		if !member {
			return errNotMember()
		}
		res, err := tx.Run(ctx, query, map[string]any{"id": groupID, "userId": userID})
		if err != nil {
			return err
		}
		ids, err = collectStrings(ctx, res, "id")
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *neo4jRelationshipRepository) ListFriends(ctx context.Context, userID string) ([]models.FriendEntry, error) {
	var out []models.FriendEntry
	err := r.read(ctx, "list_friends", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (me:User {userId: $userId})-[:FRIENDS_WITH]-(f:User)
			WITH DISTINCT me, f,
			     CASE WHEN me.userId < f.userId
			          THEN me.userId + ':' + f.userId
			          ELSE f.userId + ':' + me.userId END AS key
			OPTIONAL MATCH (r:ChatRoom {privateKey: key})
			RETURN f.userId AS id, r.id AS roomId
			ORDER BY id`,
			map[string]any{"userId": userID})
		if err != nil {
			return err
		}
		out = []models.FriendEntry{}
		for res.Next(ctx) {
			rec := res.Record()
			out = append(out, models.FriendEntry{UserID: recString(rec, "id"), RoomID: recString(rec, "roomId")})
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *neo4jRelationshipRepository) ListSentRequests(ctx context.Context, userID string) ([]string, error) {
	return r.listIDs(ctx, "list_sent_requests", `
		MATCH (:User {userId: $userId})-[:REQUESTED]->(t:User)
		RETURN t.userId AS id ORDER BY id`, userID)
}

func (r *neo4jRelationshipRepository) ListReceivedRequests(ctx context.Context, userID string) ([]string, error) {
	return r.listIDs(ctx, "list_received_requests", `
		MATCH (s:User)-[:REQUESTED]->(:User {userId: $userId})
		RETURN s.userId AS id ORDER BY id`, userID)
}

func (r *neo4jRelationshipRepository) listIDs(ctx context.Context, op, query, userID string) ([]string, error) {
	var ids []string
	err := r.read(ctx, op, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, query, map[string]any{"userId": userID})
		if err != nil {
			return err
		}
		ids, err = collectStrings(ctx, res, "id")
		return err
	})
	return ids, err
}

const relationStatusQuery = `
	RETURN EXISTS { (me)-[:FRIENDS_WITH]-(o) } AS friend,
	       EXISTS { (me)-[:REQUESTED]->(o) } AS sent,
	       EXISTS { (o)-[:REQUESTED]->(me) } AS received`

func (r *neo4jRelationshipRepository) RelationStatus(ctx context.Context, self, other string) (models.RequestStatus, error) {
	status := models.RequestStatusNone
	err := r.read(ctx, "relation_status", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (me:User {userId: $self}), (o:User {userId: $other})`+relationStatusQuery,
			map[string]any{"self": self, "other": other})
		if err != nil {
			return err
		}
		if res.Next(ctx) {
			status = statusFromRecord(res.Record())
		}
		return res.Err()
	})
	return status, err
}

func (r *neo4jRelationshipRepository) RelationStatuses(ctx context.Context, self string, others []string) (map[string]models.RequestStatus, error) {
	out := make(map[string]models.RequestStatus, len(others))
	for _, id := range others {
		out[id] = models.RequestStatusNone
	}
	if len(others) == 0 {
		return out, nil
	}
	err := r.read(ctx, "relation_statuses", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (me:User {userId: $self})
			UNWIND $others AS otherId
			MATCH (o:User {userId: otherId})
			WITH me, o
			RETURN o.userId AS id,
			       EXISTS { (me)-[:FRIENDS_WITH]-(o) } AS friend,
			       EXISTS { (me)-[:REQUESTED]->(o) } AS sent,
			       EXISTS { (o)-[:REQUESTED]->(me) } AS received`,
			map[string]any{"self": self, "others": others})
		if err != nil {
			return err
		}
		for res.Next(ctx) {
			rec := res.Record()
			out[recString(rec, "id")] = statusFromRecord(rec)
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockPairTx takes write locks on both users so concurrent requests between
// the same pair serialize.
func lockPairTx(ctx context.Context, tx neo4j.ManagedTransaction, a, b string) (bool, error) {
	res, err := tx.Run(ctx, `
		MATCH (a:User {userId: $a}), (b:User {userId: $b})
		SET a.touchedAt = $now, b.touchedAt = $now
		RETURN count(*) AS n`,
		map[string]any{"a": a, "b": b, "now": now()})
	if err != nil {
		return false, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return false, err
	}
	return recInt(rec, "n") > 0, nil
}

func (r *neo4jRelationshipRepository) SendRequest(ctx context.Context, from, to string) error {
	return r.write(ctx, "send_request", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		found, err := lockPairTx(ctx, tx, from, to)
		if err != nil {
			return err
		}
		if !found {
			return models.NewNotFoundError("User", to)
		}
		res, err := tx.Run(ctx, `
			MATCH (me:User {userId: $self}), (o:User {userId: $other})`+relationStatusQuery,
			map[string]any{"self": from, "other": to})
		if err != nil {
			return err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return err
		}
		if statusFromRecord(rec) != models.RequestStatusNone {
			return errRelationExists()
		}
		_, err = tx.Run(ctx, `
			MATCH (a:User {userId: $from}), (b:User {userId: $to})
			MERGE (a)-[q:REQUESTED]->(b)
			ON CREATE SET q.createdAt = $now`,
			map[string]any{"from": from, "to": to, "now": now()})
		return err
	})
}

const dropRequestQuery = `
	OPTIONAL MATCH (:User {userId: $from})-[q:REQUESTED]->(:User {userId: $to})
	WITH collect(q) AS qs
	FOREACH (x IN qs | DELETE x)
	RETURN size(qs) AS n`

func (r *neo4jRelationshipRepository) CancelRequest(ctx context.Context, from, to string) error {
	return r.dropRequest(ctx, "cancel_request", from, to)
}

func (r *neo4jRelationshipRepository) RejectRequest(ctx context.Context, receiver, sender string) error {
	return r.dropRequest(ctx, "reject_request", sender, receiver)
}

func (r *neo4jRelationshipRepository) dropRequest(ctx context.Context, op, from, to string) error {
	return r.write(ctx, op, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, dropRequestQuery, map[string]any{"from": from, "to": to})
		if err != nil {
			return err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return err
		}
		if recInt(rec, "n") == 0 {
			return errRequestNotFound(from, to)
		}
		return nil
	})
}

func (r *neo4jRelationshipRepository) AcceptRequest(ctx context.Context, receiver, sender string) error {
	return r.write(ctx, "accept_request", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if _, err := lockPairTx(ctx, tx, sender, receiver); err != nil {
			return err
		}
		res, err := tx.Run(ctx, `
			OPTIONAL MATCH (s:User {userId: $sender})-[q:REQUESTED]->(me:User {userId: $receiver})
			WITH s, me, collect(q) AS qs
			FOREACH (x IN qs | DELETE x)
			FOREACH (_ IN CASE WHEN size(qs) > 0 THEN [1] ELSE [] END |
				MERGE (s)-[:FRIENDS_WITH]->(me))
			RETURN size(qs) AS n`,
			map[string]any{"sender": sender, "receiver": receiver})
		if err != nil {
			return err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return err
		}
		if recInt(rec, "n") == 0 {
			return errRequestNotFound(sender, receiver)
		}
		return nil
	})
}

func (r *neo4jRelationshipRepository) DetachFriendship(ctx context.Context, a, b string) (*models.Detachment, error) {
	d := &models.Detachment{}
	err := r.write(ctx, "detach_friendship", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		*d = models.Detachment{}
		res, err := tx.Run(ctx, `
			OPTIONAL MATCH (:User {userId: $a})-[f:FRIENDS_WITH]-(:User {userId: $b})
			WITH collect(f) AS fs
			FOREACH (x IN fs | DELETE x)
			RETURN size(fs) AS n`,
			map[string]any{"a": a, "b": b})
		if err != nil {
			return err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return err
		}
		if recInt(rec, "n") == 0 {
			return errFriendshipNotFound(a, b)
		}

		res, err = tx.Run(ctx, `
			MATCH (r:ChatRoom {privateKey: $key})
			WITH r, r.id AS id, r.createdAt AS createdAt
			DETACH DELETE r
			RETURN id, createdAt`,
			map[string]any{"key": models.PairKey(a, b)})
		if err != nil {
			return err
		}
		if res.Next(ctx) {
			rec := res.Record()
			d.RoomID = recString(rec, "id")
			d.RoomCreatedAt = recTime(rec, "createdAt")
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *neo4jRelationshipRepository) RestoreFriendship(ctx context.Context, a, b string, d *models.Detachment) error {
	return r.write(ctx, "restore_friendship", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if _, err := tx.Run(ctx, `
			MATCH (a:User {userId: $a}), (b:User {userId: $b})
			MERGE (a)-[:FRIENDS_WITH]-(b)`,
			map[string]any{"a": a, "b": b}); err != nil {
			return err
		}
		if d == nil || d.RoomID == "" {
			return nil
		}
		_, err := tx.Run(ctx, `
			MATCH (a:User {userId: $a}), (b:User {userId: $b})
			MERGE (r:ChatRoom {privateKey: $key})
			ON CREATE SET r.id = $id, r.name = $name, r.isGroup = false, r.createdAt = $createdAt
			MERGE (a)-[:HAS_MEMBER]->(r)
			MERGE (b)-[:HAS_MEMBER]->(r)`,
			map[string]any{
				"a": a, "b": b,
				"key":       models.PairKey(a, b),
				"id":        d.RoomID,
				"name":      models.PrivateRoomName,
				"createdAt": d.RoomCreatedAt,
			})
		return err
	})
}

func (r *neo4jRelationshipRepository) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	stats := &models.UserStats{}
	err := r.read(ctx, "stats", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (me:User {userId: $userId})
			OPTIONAL MATCH (me)-[:ANSWERED]->(o:Option)
			WITH me, collect(o.value) AS prefs
			RETURN COUNT { (me)-[:FRIENDS_WITH]-(:User) } AS friends,
			       COUNT { (me)-[:HAS_MEMBER]->(:ChatRoom {isGroup: true}) } AS groups,
			       prefs`,
			map[string]any{"userId": userID})
		if err != nil {
			return err
		}
		if res.Next(ctx) {
			rec := res.Record()
			stats.FriendsCount = recInt(rec, "friends")
			stats.GroupsCount = recInt(rec, "groups")
			if prefs, ok := rec.Get("prefs"); ok {
				if list, ok := prefs.([]any); ok && len(list) > 0 {
					stats.Preference, _ = list[0].(string)
				}
			}
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *neo4jRelationshipRepository) Suggestions(ctx context.Context, userID string, limit int) ([]models.ScoredUser, error) {
	var out []models.ScoredUser
	err := r.read(ctx, "suggestions", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (me:User {userId: $userId})
			CALL {
				WITH me
				MATCH (me)-[:ANSWERED]->(o:Option)<-[:ANSWERED]-(u:User)
				WHERE u <> me
				  AND NOT (me)-[:FRIENDS_WITH]-(u)
				  AND NOT (me)-[:REQUESTED]-(u)
				RETURN u AS candidate, count(o) * $interestWeight AS score
				UNION ALL
				WITH me
				MATCH (me)-[:FRIENDS_WITH]-(mf:User)-[:FRIENDS_WITH]-(u:User)
				WHERE u <> me
				  AND NOT (me)-[:FRIENDS_WITH]-(u)
				  AND NOT (me)-[:REQUESTED]-(u)
				RETURN u AS candidate, count(DISTINCT mf) * $mutualWeight AS score
			}
			WITH candidate, sum(score) AS total
			RETURN candidate.userId AS id, total
			ORDER BY total DESC, id ASC
			LIMIT $limit`,
			map[string]any{
				"userId":         userID,
				"interestWeight": InterestWeight,
				"mutualWeight":   MutualWeight,
				"limit":          limit,
			})
		if err != nil {
			return err
		}
		out = []models.ScoredUser{}
		for res.Next(ctx) {
			rec := res.Record()
			out = append(out, models.ScoredUser{UserID: recString(rec, "id"), Score: recInt(rec, "total")})
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *neo4jRelationshipRepository) ListQuestions(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	err := r.read(ctx, "list_questions", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MATCH (q:Question)
			OPTIONAL MATCH (q)-[:HAS_OPTION]->(o:Option)
			WITH q, o ORDER BY o.id
			RETURN q.id AS id, q.text AS text,
			       collect(CASE WHEN o IS NULL THEN NULL ELSE {id: o.id, value: o.value} END) AS options
			ORDER BY id`, nil)
		if err != nil {
			return err
		}
		questions = []models.Question{}
		for res.Next(ctx) {
			rec := res.Record()
			q := models.Question{ID: recString(rec, "id"), Text: recString(rec, "text")}
			if raw, ok := rec.Get("options"); ok {
				list, _ := raw.([]any)
				for _, item := range list {
					m, _ := item.(map[string]any)
					id, _ := m["id"].(string)
					value, _ := m["value"].(string)
					q.Options = append(q.Options, models.Option{ID: id, QuestionID: q.ID, Value: value})
				}
			}
			questions = append(questions, q)
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *neo4jRelationshipRepository) SubmitAnswer(ctx context.Context, userID, optionID string) error {
	return r.write(ctx, "submit_answer", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		res, err := tx.Run(ctx, `
			MERGE (me:User {userId: $userId})
			WITH me
			MATCH (newOption:Option {id: $optionId})<-[:HAS_OPTION]-(q:Question)
			OPTIONAL MATCH (me)-[old:ANSWERED]->(:Option)<-[:HAS_OPTION]-(q)
			DELETE old
			WITH DISTINCT me, newOption
			MERGE (me)-[:ANSWERED]->(newOption)
			RETURN newOption.id AS id`,
			map[string]any{"userId": userID, "optionId": optionID})
		if err != nil {
			return err
		}
		if res.Next(ctx) {
			return nil
		}
		if err := res.Err(); err != nil {
			return err
		}
		return models.NewNotFoundError("Option", optionID)
	})
}

func (r *neo4jRelationshipRepository) UpsertQuestion(ctx context.Context, q *models.Question) error {
	options := make([]map[string]any, len(q.Options))
	for i, o := range q.Options {
		options[i] = map[string]any{"id": o.ID, "value": o.Value}
	}
	return r.write(ctx, "upsert_question", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, `
			MERGE (q:Question {id: $id})
			SET q.text = $text
			WITH q
			UNWIND $options AS opt
			MERGE (o:Option {id: opt.id})
			SET o.value = opt.value
			MERGE (q)-[:HAS_OPTION]->(o)`,
			map[string]any{"id": q.ID, "text": q.Text, "options": options})
		return err
	})
}

func friendsTx(ctx context.Context, tx neo4j.ManagedTransaction, a, b string) (bool, error) {
	res, err := tx.Run(ctx, `
		OPTIONAL MATCH (:User {userId: $a})-[f:FRIENDS_WITH]-(:User {userId: $b})
		RETURN count(f) > 0 AS ok`,
		map[string]any{"a": a, "b": b})
	if err != nil {
		return false, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return false, err
	}
	return recBool(rec, "ok"), nil
}

func membershipTx(ctx context.Context, tx neo4j.ManagedTransaction, roomID, userID string) (bool, bool, error) {
	res, err := tx.Run(ctx, `
		OPTIONAL MATCH (u:User {userId: $userId})-[m:HAS_MEMBER]->(r:ChatRoom {id: $roomId})
		OPTIONAL MATCH (u)-[a:IS_ADMIN_OF]->(r)
		RETURN m IS NOT NULL AS member, a IS NOT NULL AS admin`,
		map[string]any{"userId": userID, "roomId": roomID})
	if err != nil {
		return false, false, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return false, false, err
	}
	member := recBool(rec, "member")
	return member, member && recBool(rec, "admin"), nil
}

func groupTx(ctx context.Context, tx neo4j.ManagedTransaction, groupID string) error {
	n, err := countTx(ctx, tx, `MATCH (r:ChatRoom {id: $id, isGroup: true}) RETURN count(r) AS n`, groupID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errGroupNotFound(groupID)
	}
	return nil
}

func requireAdminTx(ctx context.Context, tx neo4j.ManagedTransaction, groupID, userID string) error {
	_, admin, err := membershipTx(ctx, tx, groupID, userID)
	if err != nil {
		return err
	}
	if !admin {
		return errNotAdmin()
	}
	return nil
}

func countTx(ctx context.Context, tx neo4j.ManagedTransaction, query, id string) (int, error) {
	res, err := tx.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return 0, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, err
	}
	return recInt(rec, "n"), nil
}

func collectStrings(ctx context.Context, res neo4j.ResultWithContext, key string) ([]string, error) {
	out := []string{}
	for res.Next(ctx) {
		out = append(out, recString(res.Record(), key))
	}
	return out, res.Err()
}

func roomFromRecord(rec *neo4j.Record) *models.ChatRoom {
	return &models.ChatRoom{
		ID:        recString(rec, "id"),
		Name:      recString(rec, "name"),
		IsGroup:   recBool(rec, "isGroup"),
		CreatedAt: recTime(rec, "createdAt"),
	}
}

func statusFromRecord(rec *neo4j.Record) models.RequestStatus {
	switch {
	case recBool(rec, "friend"):
		return models.RequestStatusFriend
	case recBool(rec, "sent"):
		return models.RequestStatusSent
	case recBool(rec, "received"):
		return models.RequestStatusReceived
	default:
		return models.RequestStatusNone
	}
}

func recString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recInt(rec *neo4j.Record, key string) int {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return int(n)
}

func recBool(rec *neo4j.Record, key string) bool {
	v, _ := rec.Get(key)
	b, _ := v.(bool)
	return b
}

func recTime(rec *neo4j.Record, key string) time.Time {
	v, _ := rec.Get(key)
	t, _ := v.(time.Time)
	return t.UTC()
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
