// Package audience classifies the addressing of a note and stores its
// recipients.
package audience

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
)

// Store is implemented by *db.DB and *db.Tx.
type Store interface {
	SaveActor(ctx context.Context, a *domain.Actor) (*domain.Actor, bool, error)
	EnsurePseudoActor(ctx context.Context, originId int64, groupType domain.GroupType) (int64, error)
	ReplaceAudience(ctx context.Context, noteId int64, actorIds []int64, visibility domain.Visibility) (bool, error)
}

// Classify returns the visibility of the addressing.
func Classify(addr *domain.Addressing) domain.Visibility {
	switch {
	case addr.IsEmpty():
		return domain.VisibilityUnknown
	case addr.Public && addr.Followers:
		return domain.VisibilityPublicAndToFollowers
	case addr.Public:
		return domain.VisibilityPublic
	case addr.Unresolvable:
		return domain.VisibilityUnknown
	default:
		return domain.VisibilityPrivate
	}
}

type Resolver struct {
	log *log.Logger
}

func NewResolver() *Resolver {
	return &Resolver{log: util.Logger("Audience")}
}

// Resolve maps the addressing to stored actors, creating partial actors for
// unseen recipients. Recipients that cannot be identified are dropped.
func (r *Resolver) Resolve(ctx context.Context, s Store, originId int64, addr *domain.Addressing) (*domain.Audience, error) {
	aud := &domain.Audience{Visibility: Classify(addr)}
	if addr.IsEmpty() {
		return aud, nil
	}
	seen := domain.NewIdSet()
	add := func(a *domain.Actor) {
		if !seen.Has(a.Id) {
			seen.Add(a.Id)
			aud.Recipients = append(aud.Recipients, a)
		}
	}

	if addr.Public {
		a, err := pseudoActor(ctx, s, originId, domain.GroupPublic)
		if err != nil {
			return nil, err
		}
		add(a)
	}
	if addr.Followers {
		a, err := pseudoActor(ctx, s, originId, domain.GroupFollowers)
		if err != nil {
			return nil, err
		}
		add(a)
	}

	for _, recipient := range addr.Recipients {
		if recipient.IsEmpty() {
			r.log.Warn("Dropping unresolvable recipient", "originId", originId)
			continue
		}
		if domain.IsPublicMarker(recipient.Oid) || recipient.GroupType.IsPseudo() {
			continue
		}
		in := recipient.Clone()
		in.OriginId = originId
		a, _, err := s.SaveActor(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("resolving recipient %s: %w", recipient.UniqueName(), err)
		}
		add(a)
	}
	return aud, nil
}

func pseudoActor(ctx context.Context, s Store, originId int64, groupType domain.GroupType) (*domain.Actor, error) {
	id, err := s.EnsurePseudoActor(ctx, originId, groupType)
	if err != nil {
		return nil, err
	}
	oid := domain.PublicCollectionOid
	if groupType == domain.GroupFollowers {
		oid = domain.FollowersCollectionOid
	}
	return &domain.Actor{Id: id, OriginId: originId, Oid: oid, Username: groupType.String(), GroupType: groupType}, nil
}

// Save replaces the stored audience of the note. Returns true when it changed.
func (r *Resolver) Save(ctx context.Context, s Store, noteId int64, aud *domain.Audience) (bool, error) {
	changed, err := s.ReplaceAudience(ctx, noteId, aud.ActorIds(), aud.Visibility)
	if err != nil {
		return false, err
	}
	if changed {
		r.log.Debug("Audience replaced", "noteId", noteId, "visibility", aud.Visibility, "recipients", len(aud.Recipients))
	}
	return changed, nil
}

// ResolveAndSave resolves the addressing and stores it as the audience of the note.
func (r *Resolver) ResolveAndSave(ctx context.Context, s Store, originId, noteId int64, addr *domain.Addressing) (*domain.Audience, error) {
	aud, err := r.Resolve(ctx, s, originId, addr)
	if err != nil {
		return nil, err
	}
	if _, err := r.Save(ctx, s, noteId, aud); err != nil {
		return nil, err
	}
	return aud, nil
}
