package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxCommentLength = 1000

// Reviews lets clients rate providers once their request is finished.
type Reviews struct {
	store Store
	now   func() time.Time
}

func NewReviews(store Store) *Reviews {
	return &Reviews{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores the client's review of a finished service request.
func (rv *Reviews) Create(ctx context.Context, serviceID string, actor Actor, in CreateReviewRequest) (Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return Review{}, ValidationError{Field: "rating", Msg: "must be between 1 and 5"}
	}
	comment := strings.TrimSpace(in.Comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return Review{}, ValidationError{Field: "comment", Msg: "too long (max 1000 characters)"}
	}

	req, err := rv.store.GetServiceRequest(ctx, serviceID)
	if err != nil {
		return Review{}, storeErr("load service request", "service request", serviceID, err)
	}
	if actor.ID != req.ClientID {
		return Review{}, UnauthorizedError{ActorID: actor.ID, Reason: "only the client who posted the request can review it"}
	}
	if req.Status != StatusFinished {
		return Review{}, ConflictError{Resource: "review", Msg: "only finished service requests can be reviewed"}
	}

	review := Review{
		ID:         uuid.New().String(),
		ServiceID:  req.ID,
		ClientID:   req.ClientID,
		ProviderID: req.ProviderID,
		Rating:     in.Rating,
		Comment:    comment,
		CreatedAt:  rv.now(),
	}
	created, err := rv.store.CreateReview(ctx, review)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Review{}, ConflictError{Resource: "review", Msg: "this service request has already been reviewed"}
		}
		return Review{}, StoreUnavailableError{Op: "create review", Err: err}
	}
	return created, nil
}

// ForService returns the review left on a service request.
func (rv *Reviews) ForService(ctx context.Context, serviceID string) (Review, error) {
	r, err := rv.store.GetReviewByService(ctx, serviceID)
	if err != nil {
		return Review{}, storeErr("get review", "review", serviceID, err)
	}
	return r, nil
}

// ForProvider returns the provider's reviews, newest first, with a summary.
func (rv *Reviews) ForProvider(ctx context.Context, providerID string) ([]Review, RatingSummary, error) {
	reviews, err := rv.store.ListReviewsByProvider(ctx, providerID)
	if err != nil {
		return nil, RatingSummary{}, StoreUnavailableError{Op: "list reviews", Err: err}
	}
	if reviews == nil {
		reviews = []Review{}
	}
	return reviews, Summarize(providerID, reviews), nil
}

func Summarize(providerID string, reviews []Review) RatingSummary {
	s := RatingSummary{ProviderID: providerID}
	sum := 0
	for _, r := range reviews {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		s.TotalReviews++
		s.RatingCounts[r.Rating-1]++
		sum += r.Rating
	}
	if s.TotalReviews > 0 {
		s.AverageRating = float64(sum) / float64(s.TotalReviews)
	}
	return s
}
