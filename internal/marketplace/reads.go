package marketplace

import (
	"context"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

// Cached reads. Every key here is dropped by the mutations that can change it.

func (s *Service) Tasks(ctx context.Context) (*registry.Listing[*types.Task], error) {
	return cache.Fetch(ctx, s.cache, cache.KeyTasksAll, s.resolver.AllTasks)
}

// OpenTasks filters the cached task listing; it depends on the clock so it is not
// cached itself.
func (s *Service) OpenTasks(ctx context.Context) (*registry.Listing[*types.Task], error) {
	all, err := s.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	open := &registry.Listing[*types.Task]{Items: []*types.Task{}, Source: all.Source, Complete: all.Complete, Skipped: all.Skipped}
	for _, t := range all.Items {
		if t.AcceptsSubmissions(now) {
			open.Items = append(open.Items, t)
		}
	}
	return open, nil
}

func (s *Service) Task(ctx context.Context, taskID uint64) (*types.Task, error) {
	return cache.Fetch(ctx, s.cache, cache.KeyTask(taskID), func(ctx context.Context) (*types.Task, error) {
		return s.resolver.Task(ctx, taskID)
	})
}

func (s *Service) TasksByRequester(ctx context.Context, requester string) (*registry.Listing[*types.Task], error) {
	return cache.Fetch(ctx, s.cache, cache.KeyTasksByRequester(requester), func(ctx context.Context) (*registry.Listing[*types.Task], error) {
		return s.resolver.TasksByRequester(ctx, requester)
	})
}

func (s *Service) Submissions(ctx context.Context) (*registry.Listing[*types.Submission], error) {
	return cache.Fetch(ctx, s.cache, cache.KeySubmissionsAll, s.resolver.AllSubmissions)
}

func (s *Service) SubmissionsByTask(ctx context.Context, taskID uint64) (*registry.Listing[*types.Submission], error) {
	return cache.Fetch(ctx, s.cache, cache.KeySubmissionsByTask(taskID), func(ctx context.Context) (*registry.Listing[*types.Submission], error) {
		return s.resolver.SubmissionsByTask(ctx, taskID)
	})
}

func (s *Service) SubmissionsByLabeler(ctx context.Context, labeler string) (*registry.Listing[*types.Submission], error) {
	return cache.Fetch(ctx, s.cache, cache.KeySubmissionsByLabeler(labeler), func(ctx context.Context) (*registry.Listing[*types.Submission], error) {
		return s.resolver.SubmissionsByLabeler(ctx, labeler)
	})
}

// Profile returns NotFound when addr has no profile yet.
func (s *Service) Profile(ctx context.Context, addr string) (*registry.ProfileLookup, error) {
	return cache.Fetch(ctx, s.cache, cache.KeyProfile(addr), func(ctx context.Context) (*registry.ProfileLookup, error) {
		return s.resolver.ProfileFor(ctx, addr)
	})
}

func (s *Service) Profiles(ctx context.Context) (*registry.Listing[*types.Profile], error) {
	return cache.Fetch(ctx, s.cache, cache.KeyProfilesAll, s.resolver.AllProfiles)
}

func (s *Service) Reputation(ctx context.Context, addr string) (*types.ReputationRecord, error) {
	return cache.Fetch(ctx, s.cache, cache.KeyReputation(addr), func(ctx context.Context) (*types.ReputationRecord, error) {
		return s.resolver.ReputationFor(ctx, addr)
	})
}

func (s *Service) Stakes(ctx context.Context, owner string) (*registry.Listing[*types.Stake], error) {
	return cache.Fetch(ctx, s.cache, cache.KeyStakesByOwner(owner), func(ctx context.Context) (*registry.Listing[*types.Stake], error) {
		return s.resolver.StakesByOwner(ctx, owner)
	})
}
