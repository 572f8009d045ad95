package sqlite

import (
	"fmt"
	"strings"

	"github.com/sudo-init-do/freehub/internal/marketplace"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r userRow) toUser() marketplace.User {
	return marketplace.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.Password,
		Role:         marketplace.Role(r.Role),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func fromRequest(req marketplace.ServiceRequest) requestRow {
	return requestRow{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Budget:      req.Budget,
		Status:      string(req.Status),
		ClientID:    req.ClientID,
		ProviderID:  req.ProviderID,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		CreatedAt:   req.CreatedAt.UTC(),
		UpdatedAt:   req.UpdatedAt.UTC(),
		Version:     req.Version,
	}
}

func (r requestRow) toRequest() (marketplace.ServiceRequest, error) {
	st, ok := marketplace.ParseStatus(r.Status)
	if !ok {
		return marketplace.ServiceRequest{}, fmt.Errorf("unknown status %q on service request %s", r.Status, r.ID)
	}
	budget := r.Budget
	if budget.IsZero() {
		budget = r.Price
	}
	return marketplace.ServiceRequest{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Budget:      budget,
		Status:      st,
		ClientID:    r.ClientID,
		ProviderID:  r.ProviderID,
		Location:    r.Location,
		ImageURL:    r.ImageURL,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		Version:     r.Version,
	}, nil
}

func (r reviewRow) toReview() marketplace.Review {
	return marketplace.Review{
		ID:         r.ID,
		ServiceID:  r.ServiceID,
		ClientID:   r.ClientID,
		ProviderID: r.ProviderID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}
