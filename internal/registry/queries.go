package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/trigg3rX/labelmarket-backend/internal/decoder"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

func (r *Resolver) AllTasks(ctx context.Context) (*Listing[*types.Task], error) {
	listing, err := resolveAll(ctx, r, decoder.KindTask, decoder.DecodeTask)
	if err != nil {
		return nil, err
	}
	sort.Slice(listing.Items, func(i, j int) bool { return listing.Items[i].TaskID < listing.Items[j].TaskID })
	return listing, nil
}

func (r *Resolver) AllSubmissions(ctx context.Context) (*Listing[*types.Submission], error) {
	listing, err := resolveAll(ctx, r, decoder.KindSubmission, decoder.DecodeSubmission)
	if err != nil {
		return nil, err
	}
	sort.Slice(listing.Items, func(i, j int) bool { return listing.Items[i].SubmissionID < listing.Items[j].SubmissionID })
	return listing, nil
}

func (r *Resolver) AllProfiles(ctx context.Context) (*Listing[*types.Profile], error) {
	return resolveAll(ctx, r, decoder.KindProfile, decoder.DecodeProfile)
}

func (r *Resolver) Task(ctx context.Context, taskID uint64) (*types.Task, error) {
	return resolveOne(ctx, r, decoder.KindTask, u64Key(taskID), decoder.DecodeTask)
}

func (r *Resolver) Submission(ctx context.Context, submissionID uint64) (*types.Submission, error) {
	return resolveOne(ctx, r, decoder.KindSubmission, u64Key(submissionID), decoder.DecodeSubmission)
}

func (r *Resolver) Profile(ctx context.Context, addr string) (*types.Profile, error) {
	return resolveOne(ctx, r, decoder.KindProfile, addressKey(addr), decoder.DecodeProfile)
}

func (r *Resolver) ReputationFor(ctx context.Context, addr string) (*types.ReputationRecord, error) {
	return resolveOne(ctx, r, decoder.KindReputation, addressKey(addr), decoder.DecodeReputation)
}

// ProfilesByOwner is the owner-scan path for profiles.
func (r *Resolver) ProfilesByOwner(ctx context.Context, owner string) (*Listing[*types.Profile], error) {
	return resolveByOwner(ctx, r, owner, decoder.KindProfile, decoder.DecodeProfile)
}

// ProfileLookup is a profile plus the path that found it.
type ProfileLookup struct {
	Profile *types.Profile `json:"profile"`
	Source  Source         `json:"source"`
}

// ProfileFor reads through the registry, and falls back to an owner scan only while the
// profiles table is still empty.
func (r *Resolver) ProfileFor(ctx context.Context, addr string) (*ProfileLookup, error) {
	reg, err := r.Registry(ctx)
	if err != nil {
		return nil, err
	}

	if reg.Profiles.Size > 0 {
		profile, err := r.Profile(ctx, addr)
		if err != nil {
			return nil, err
		}
		return &ProfileLookup{Profile: profile, Source: SourceRegistry}, nil
	}

	r.logger.Debug("Profiles table empty, scanning owned objects", "address", addr)
	listing, err := r.ProfilesByOwner(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(listing.Items) == 0 {
		return nil, pkgErrors.ErrNotFound
	}
	return &ProfileLookup{Profile: listing.Items[0], Source: SourceOwnerScan}, nil
}

// StakesByOwner has no registry table; stakes are owned objects of the labeler.
func (r *Resolver) StakesByOwner(ctx context.Context, owner string) (*Listing[*types.Stake], error) {
	return resolveByOwner(ctx, r, owner, decoder.KindStake, decoder.DecodeStake)
}

// Derived views. The ledger has no filtered queries, so these filter a full listing.

func (r *Resolver) TasksByRequester(ctx context.Context, requester string) (*Listing[*types.Task], error) {
	all, err := r.AllTasks(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, func(t *types.Task) bool { return sameAddress(t.Requester, requester) }), nil
}

func (r *Resolver) OpenTasks(ctx context.Context, now time.Time) (*Listing[*types.Task], error) {
	all, err := r.AllTasks(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, func(t *types.Task) bool { return t.AcceptsSubmissions(now) }), nil
}

func (r *Resolver) SubmissionsByTask(ctx context.Context, taskID uint64) (*Listing[*types.Submission], error) {
	all, err := r.AllSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, func(s *types.Submission) bool { return s.TaskID == taskID }), nil
}

func (r *Resolver) SubmissionsByLabeler(ctx context.Context, labeler string) (*Listing[*types.Submission], error) {
	all, err := r.AllSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, func(s *types.Submission) bool { return sameAddress(s.Labeler, labeler) }), nil
}

// HasSubmitted reports whether labeler already has a submission for taskID.
func (r *Resolver) HasSubmitted(ctx context.Context, taskID uint64, labeler string) (bool, error) {
	submissions, err := r.SubmissionsByTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, s := range submissions.Items {
		if sameAddress(s.Labeler, labeler) {
			return true, nil
		}
	}
	return false, nil
}

func filter[T any](listing *Listing[T], keep func(T) bool) *Listing[T] {
	out := &Listing[T]{
		Items:    make([]T, 0),
		Source:   listing.Source,
		Complete: listing.Complete,
		Skipped:  listing.Skipped,
	}
	for _, item := range listing.Items {
		if keep(item) {
			out.Items = append(out.Items, item)
		}
	}
	return out
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(normalize(a), normalize(b))
}

// IsNotFound is a convenience for callers branching on "nothing there yet".
func IsNotFound(err error) bool {
	return errors.Is(err, pkgErrors.ErrNotFound)
}
