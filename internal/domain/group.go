package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group is a coaching group. AdminIDs are the coaches/admins allowed to
// assign workouts and to log on an athlete's behalf; MemberIDs are the
// athletes. An admin is always also a member.
type Group struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name      string               `bson:"name" json:"name"`
	OwnerID   primitive.ObjectID   `bson:"ownerId" json:"ownerId"`
	AdminIDs  []primitive.ObjectID `bson:"adminIds" json:"adminIds"`
	MemberIDs []primitive.ObjectID `bson:"memberIds" json:"memberIds"`
	CreatedAt time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt" json:"updatedAt"`
}

func (g *Group) IsAdmin(userID primitive.ObjectID) bool {
	return containsID(g.AdminIDs, userID)
}

func (g *Group) IsMember(userID primitive.ObjectID) bool {
	return containsID(g.MemberIDs, userID) || g.IsAdmin(userID)
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
