package domain

// GroupType tells whether an Actor is a single person or some kind of group.
// Public and Followers are pseudo-actors used only as audience members.
type GroupType int

const (
	GroupUnknown    GroupType = 0
	GroupNotAGroup  GroupType = 1 // a person, service or application
	GroupGeneric    GroupType = 2 // a collection or a group actor
	GroupActorOwned GroupType = 3 // a list owned by some actor
	GroupPublic     GroupType = 4
	GroupFollowers  GroupType = 5
	GroupFriends    GroupType = 6
)

func GroupTypeFromCode(code int64) GroupType {
	switch g := GroupType(code); g {
	case GroupNotAGroup, GroupGeneric, GroupActorOwned, GroupPublic, GroupFollowers, GroupFriends:
		return g
	default:
		return GroupUnknown
	}
}

// GroupTypeFromObjectType maps an ActivityStreams actor/object type.
func GroupTypeFromObjectType(objectType string) GroupType {
	switch objectType {
	case "Person", "Service", "Application":
		return GroupNotAGroup
	case "Group", "Organization", "Collection", "OrderedCollection":
		return GroupGeneric
	default:
		return GroupUnknown
	}
}

func (g GroupType) Code() int64 {
	return int64(g)
}

// IsGroupLike is true for everything that may have members.
func (g GroupType) IsGroupLike() bool {
	switch g {
	case GroupGeneric, GroupActorOwned, GroupPublic, GroupFollowers, GroupFriends:
		return true
	case GroupUnknown, GroupNotAGroup:
		return false
	}
	return false
}

// IsPseudo is true for the collections that are not real actors of an origin.
func (g GroupType) IsPseudo() bool {
	switch g {
	case GroupPublic, GroupFollowers:
		return true
	case GroupUnknown, GroupNotAGroup, GroupGeneric, GroupActorOwned, GroupFriends:
		return false
	}
	return false
}

func (g GroupType) String() string {
	switch g {
	case GroupNotAGroup:
		return "person"
	case GroupGeneric:
		return "collection"
	case GroupActorOwned:
		return "list"
	case GroupPublic:
		return "public"
	case GroupFollowers:
		return "followers"
	case GroupFriends:
		return "friends"
	default:
		return "unknown"
	}
}
