package web

import (
	"net/http"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/activitypub"
	"github.com/deemkeen/tusk/domain"
	"github.com/gin-gonic/gin"
)

// statusFor maps a processing failure to the HTTP status returned to the sender.
// 4xx tells the peer not to retry unchanged, 5xx invites a retry.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindMalformed, domain.KindVerification:
		return http.StatusBadRequest
	case domain.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleActorInbox serves POST /u/:name/ap/inbox.
func (s *Server) handleActorInbox(c *gin.Context) {
	name := c.Param("name")
	if _, err := s.store.LocalUserByName(c.Request.Context(), name); err != nil {
		s.notFoundOr(c, err)
		return
	}
	s.receive(c)
}

// handleSharedInbox serves POST /ap/inbox. Routing to local users happens in
// the handlers, which look up the objects the activity names.
func (s *Server) handleSharedInbox(c *gin.Context) {
	s.receive(c)
}

func (s *Server) receive(c *gin.Context) {
	log := s.log.With().Str("path", c.Request.URL.Path).Logger()

	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		log.Warn().Err(err).Msg("Inbox: failed to read body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	act, err := activitypub.Decode(body)
	if err != nil {
		log.Info().Err(err).Msg("Inbox: rejected payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.conf.Conf.VerifySignatures {
		signer, err := s.verifier.Verify(c.Request.Context(), c.Request, body)
		if err != nil {
			log.Warn().Err(err).Str("actor", act.ActorIRI()).Msg("Inbox: signature verification failed")
			if domain.KindOf(err) == domain.KindDependency {
				c.JSON(http.StatusBadGateway, gin.H{"error": "Could not fetch signing key"})
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		if signer.APId != act.ActorIRI() {
			log.Warn().Str("signer", signer.APId).Str("actor", act.ActorIRI()).Msg("Inbox: signer is not the actor")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature does not match actor"})
			return
		}
	}

	outcome, err := s.inbox.Handle(c.Request.Context(), act)
	if err != nil {
		status := statusFor(err)
		c.Error(err)
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}

	if outcome == activitypub.Duplicate {
		c.Status(http.StatusAccepted)
		return
	}
	c.Status(http.StatusOK)
}
