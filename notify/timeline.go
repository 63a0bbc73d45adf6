package notify

import (
	"context"
	"fmt"

	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/streaming"
)

// FanOutPost streams a new or boosted post to the home streams of the
// author's local followers. Direct posts go only to the mentioned local
// users, on the direct stream.
func (s *Service) FanOutPost(ctx context.Context, author *domain.User, post *domain.Post, mentioned []domain.User) error {
	if post.Visibility == domain.VisibilityDirect {
		for i := range mentioned {
			if mentioned[i].Local {
				s.bus.Publish(mentioned[i].Id, streaming.UpdateEvent(post, streaming.Direct))
			}
		}
		return nil
	}

	receivers, err := s.timelineReceivers(ctx, author)
	if err != nil {
		return err
	}
	for _, id := range receivers {
		s.bus.Publish(id, streaming.UpdateEvent(post, streaming.User))
	}
	return nil
}

// FanOutEdit streams an edited post to the same audience as FanOutPost.
func (s *Service) FanOutEdit(ctx context.Context, author *domain.User, post *domain.Post, mentioned []domain.User) error {
	if post.Visibility == domain.VisibilityDirect {
		for i := range mentioned {
			if mentioned[i].Local {
				s.bus.Publish(mentioned[i].Id, streaming.StatusUpdateEvent(post, streaming.Direct))
			}
		}
		return nil
	}

	receivers, err := s.timelineReceivers(ctx, author)
	if err != nil {
		return err
	}
	for _, id := range receivers {
		s.bus.Publish(id, streaming.StatusUpdateEvent(post, streaming.User))
	}
	return nil
}

// FanOutDelete tells the same audience that a post is gone.
func (s *Service) FanOutDelete(ctx context.Context, author *domain.User, postID string) error {
	receivers, err := s.timelineReceivers(ctx, author)
	if err != nil {
		return err
	}
	for _, id := range receivers {
		s.bus.Publish(id, streaming.DeleteEvent(postID, streaming.User))
	}
	return nil
}

func (s *Service) timelineReceivers(ctx context.Context, author *domain.User) ([]string, error) {
	followers, err := s.store.LocalFollowers(ctx, author.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to read local followers: %w", err)
	}
	ids := make([]string, 0, len(followers)+1)
	if author.Local {
		ids = append(ids, author.Id)
	}
	for _, f := range followers {
		ids = append(ids, f.Id)
	}
	return ids, nil
}
