package web

import (
	"net/http"

	"github.com/deemkeen/tusk/activitypub"
	"github.com/deemkeen/tusk/domain"
	"github.com/gin-gonic/gin"
)

const activityJSON = activitypub.ContentType + "; charset=utf-8"

// handleActor serves the actor document of a local user.
func (s *Server) handleActor(c *gin.Context) {
	u, err := s.store.LocalUserByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.notFoundOr(c, err)
		return
	}
	c.Header("Content-Type", activityJSON)
	c.JSON(http.StatusOK, activitypub.PersonFromUser(u))
}

// handleNote serves a local post as a Note. Followers-only, direct and
// local-only posts are not public documents.
func (s *Server) handleNote(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := s.store.PostById(ctx, c.Param("id"))
	if err != nil {
		s.notFoundOr(c, err)
		return
	}
	if p.LocalOnly || (p.Visibility != domain.VisibilityPublic && p.Visibility != domain.VisibilityUnlisted) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	author, err := s.store.UserById(ctx, p.AuthorId)
	if err != nil {
		s.notFoundOr(c, err)
		return
	}
	if !author.Local {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	mentioned, err := s.store.MentionedUsers(ctx, p.Id)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	note := activitypub.NoteFromPost(p, author, mentioned)
	note.Context = activitypub.ContextActivityStreams
	c.Header("Content-Type", activityJSON)
	c.JSON(http.StatusOK, note)
}

func (s *Server) notFoundOr(c *gin.Context, err error) {
	if domain.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
