package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/deemkeen/andstatus/activitypub"
	"github.com/deemkeen/andstatus/checker"
	"github.com/deemkeen/andstatus/executor"
	"github.com/deemkeen/andstatus/util"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleStatus(c *gin.Context) {
	counts, err := s.app.Store.Counts(c.Request.Context())
	if err != nil {
		s.log.Error("Could not count rows", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	st := s.app.Pools.Status()
	resp := gin.H{
		"version":            util.GetNameAndVersion(),
		"syncAvailable":      st.SyncAvailable,
		"activeSyncs":        st.ActiveSyncs,
		"maintenanceRunning": st.MaintenanceRunning,
		"counts":             counts,
	}
	if !st.LastPassStarted.IsZero() {
		resp["lastPass"] = gin.H{
			"started":  st.LastPassStarted,
			"duration": st.LastPassDuration.String(),
			"error":    st.LastPassErr,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleFix starts a fix data pass in the background.
// Query: countOnly=true, conversation=<noteId>[,<noteId>...].
func (s *Server) handleFix(c *gin.Context) {
	opts := checker.Options{}
	if v := c.Query("countOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "countOnly must be a boolean"})
			return
		}
		opts.CountOnly = b
	}
	ids, err := parseIds(c.Query("conversation"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts.ConversationNoteIds = ids

	chk := s.app.Checker()
	err = s.app.Pools.StartMaintenance(context.Background(), func(ctx context.Context) error {
		return chk.FixData(ctx, opts).Err
	}, nil)
	if errors.Is(err, executor.ErrPassRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"started": true, "countOnly": opts.CountOnly})
}

func (s *Server) handleCancelFix(c *gin.Context) {
	if !s.app.Pools.CancelMaintenance() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no maintenance pass is running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// handleIngest applies one ActivityPub activity posted for the named origin.
func (s *Server) handleIngest(c *gin.Context) {
	o, err := s.app.Origin(c.Param("origin"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}
	act, err := activitypub.ParseActivity(o.Id, body)
	if err != nil {
		s.log.Warn("Rejected activity", "origin", o.Name, "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updater := s.app.Updater()
	var resp gin.H
	err = s.app.Pools.Sync(c.Request.Context(), executor.Job{Name: "ingest " + o.Name, Run: func(ctx context.Context) error {
		r, err := updater.Apply(ctx, act)
		if err != nil {
			return err
		}
		resp = gin.H{
			"activityId": r.ActivityId,
			"inserted":   r.Inserted,
			"noteId":     r.NoteId,
			"event":      r.Event.String(),
		}
		return nil
	}})
	if errors.Is(err, executor.ErrSyncUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
