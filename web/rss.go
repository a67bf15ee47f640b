package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/deemkeen/andstatus/db"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/gorilla/feeds"
)

func (s *Server) handleConversationFeed(c *gin.Context) {
	noteId, err := strconv.ParseInt(c.Param("noteId"), 10, 64)
	if err != nil || noteId <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid note ID"})
		return
	}
	atom, err := s.ConversationFeed(c.Request.Context(), noteId)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}
	if err != nil {
		s.log.Error("Could not build feed", "note", noteId, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build feed"})
		return
	}
	c.Render(http.StatusOK, render.Data{ContentType: "application/atom+xml; charset=utf-8", Data: []byte(atom)})
}

// ConversationFeed renders the conversation of the note as an Atom feed,
// oldest note first.
func (s *Server) ConversationFeed(ctx context.Context, noteId int64) (string, error) {
	note, err := s.app.Store.NoteById(ctx, noteId)
	if err != nil {
		return "", err
	}
	conversationId := note.ConversationId
	if conversationId == 0 {
		conversationId = note.Id
	}
	notes, err := s.app.Store.NotesOfConversation(ctx, conversationId)
	if err != nil {
		return "", err
	}

	authorIds := make([]int64, 0, len(notes))
	for _, n := range notes {
		authorIds = append(authorIds, n.AuthorId)
	}
	actors, err := s.app.Store.ActorsByIds(ctx, authorIds)
	if err != nil {
		return "", err
	}
	authors := make(map[int64]*domain.Actor, len(actors))
	for _, a := range actors {
		authors[a.Id] = a
	}

	link := fmt.Sprintf("%s/conversations/%d/feed", s.baseURL, noteId)
	feed := &feeds.Feed{
		Id:          link,
		Title:       fmt.Sprintf("Conversation %d", conversationId),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("%d notes", len(notes)),
		Created:     note.CreatedAt,
	}

	for _, n := range notes {
		if n.Status == domain.NoteAbsent {
			continue
		}
		item := &feeds.Item{
			Id:      n.Oid,
			Title:   n.Name,
			Content: n.Content,
			Created: n.CreatedAt,
			Updated: n.UpdatedAt,
		}
		if item.Title == "" {
			item.Title = n.CreatedAt.Format(util.DateTimeFormat())
		}
		href := n.URL
		if href == "" {
			href = n.Oid
		}
		item.Link = &feeds.Link{Href: href}
		if a, ok := authors[n.AuthorId]; ok {
			name := a.UniqueName()
			if name == "" {
				name = a.Oid
			}
			item.Author = &feeds.Author{Name: name}
		}
		if n.Status == domain.NoteDeleted {
			item.Title = "(deleted)"
		}
		if n.UpdatedAt.After(feed.Updated) {
			feed.Updated = n.UpdatedAt
		}
		feed.Items = append(feed.Items, item)
	}
	return feed.ToAtom()
}
