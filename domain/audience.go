package domain

// Visibility is stored at the note level and classifies its audience.
type Visibility int

const (
	VisibilityUnknown Visibility = iota
	VisibilityPublic
	VisibilityPublicAndToFollowers
	VisibilityPrivate
)

func VisibilityFromCode(code int64) Visibility {
	switch v := Visibility(code); v {
	case VisibilityPublic, VisibilityPublicAndToFollowers, VisibilityPrivate:
		return v
	default:
		return VisibilityUnknown
	}
}

func (v Visibility) Code() int64 {
	return int64(v)
}

func (v Visibility) IsPublic() bool {
	return v == VisibilityPublic || v == VisibilityPublicAndToFollowers
}

func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityPublicAndToFollowers:
		return "public_and_to_followers"
	case VisibilityPrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Addressing is the recipient information of a wire payload.
// Recipients are concrete actors, usually known only by OID.
type Addressing struct {
	Recipients []*Actor
	Public     bool
	Followers  bool
	// Unresolvable is set when the payload had addressing we could not interpret
	Unresolvable bool
}

func (a *Addressing) IsEmpty() bool {
	return a == nil || (len(a.Recipients) == 0 && !a.Public && !a.Followers)
}

// Audience is resolved addressing: visibility plus persisted recipient actors,
// including the public and followers pseudo-actors when addressed.
type Audience struct {
	Visibility Visibility
	Recipients []*Actor
}

func (a *Audience) ActorIds() []int64 {
	ids := NewIdSet()
	for _, r := range a.Recipients {
		ids.Add(r.Id)
	}
	return ids.Sorted()
}

func (a *Audience) Contains(actorId int64) bool {
	for _, r := range a.Recipients {
		if r.Id == actorId {
			return true
		}
	}
	return false
}
