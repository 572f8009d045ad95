package user

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/freehub/internal/marketplace"
)

// Profile is the public view of a user. Email and credentials never leave.
type Profile struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	Role      marketplace.Role           `json:"role"`
	CreatedAt time.Time                  `json:"created_at"`
	Finished  int                        `json:"finished_projects,omitempty"`
	Rating    *marketplace.RatingSummary `json:"rating,omitempty"`
}

type Profiles struct {
	store      marketplace.Store
	projection *marketplace.Projection
	reviews    *marketplace.Reviews
}

func NewProfiles(store marketplace.Store, projection *marketplace.Projection, reviews *marketplace.Reviews) *Profiles {
	return &Profiles{store: store, projection: projection, reviews: reviews}
}

// Get builds the public profile; providers also carry their track record.
func (p *Profiles) Get(ctx context.Context, id string) (Profile, error) {
	u, err := p.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			return Profile{}, marketplace.NotFoundError{Resource: "user", ID: id}
		}
		return Profile{}, marketplace.StoreUnavailableError{Op: "get user", Err: err}
	}

	profile := Profile{ID: u.ID, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt}
	if u.Role != marketplace.RoleProvider {
		return profile, nil
	}

	earnings, err := p.projection.EarningsSummary(ctx, u.ID)
	if err != nil {
		return Profile{}, err
	}
	_, summary, err := p.reviews.ForProvider(ctx, u.ID)
	if err != nil {
		return Profile{}, err
	}
	profile.Finished = earnings.Count
	profile.Rating = &summary
	return profile, nil
}

// GET /users/:id/profile
func (p *Profiles) GetPublicProfile(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing user id"})
	}
	profile, err := p.Get(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(marketplace.StatusCode(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, profile)
}
