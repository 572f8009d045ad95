package marketplace

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/freehub/internal/logger"
)

// CurrentUserFunc resolves the authenticated caller of a request.
type CurrentUserFunc func(c echo.Context) (Actor, error)

// Handler is the HTTP surface of the marketplace.
type Handler struct {
	engine      *Engine
	negotiator  *Negotiator
	projection  *Projection
	reviews     *Reviews
	validate    *validator.Validate
	currentUser CurrentUserFunc
	log         *logger.Logger
}

func NewHandler(engine *Engine, negotiator *Negotiator, projection *Projection, reviews *Reviews,
	validate *validator.Validate, currentUser CurrentUserFunc, log *logger.Logger) *Handler {
	return &Handler{
		engine:      engine,
		negotiator:  negotiator,
		projection:  projection,
		reviews:     reviews,
		validate:    validate,
		currentUser: currentUser,
		log:         log.With("component", "marketplace"),
	}
}

// Mount registers the public routes and, behind requireAuth, the rest.
// providerOnly additionally guards the provider views.
func (h *Handler) Mount(g *echo.Group, requireAuth echo.MiddlewareFunc, providerOnly ...echo.MiddlewareFunc) {
	g.GET("/services", h.ListOpen)
	g.GET("/providers/:id/reviews", h.ProviderReviews)

	provider := append([]echo.MiddlewareFunc{requireAuth}, providerOnly...)
	g.POST("/services", h.CreateService, requireAuth)
	g.GET("/services/mine", h.ListMine, requireAuth)
	g.GET("/services/:id", h.GetService, requireAuth)
	g.PATCH("/services/:id/accept", h.Accept, requireAuth)
	g.PATCH("/services/:id/offer", h.Offer, requireAuth)
	g.PATCH("/services/:id/approve", h.Approve, requireAuth)
	g.PATCH("/services/:id/reject", h.Reject, requireAuth)
	g.PATCH("/services/:id/finish", h.Finish, requireAuth)
	g.POST("/services/:id/review", h.CreateReview, requireAuth)
	g.GET("/services/:id/review", h.GetServiceReview, requireAuth)
	g.GET("/my-projects", h.MyProjects, provider...)
	g.GET("/my-projects/:id", h.MyProjects, provider...)
	g.GET("/earnings", h.Earnings, provider...)
	g.GET("/earnings/:id", h.Earnings, provider...)
}

// CreateService lets a client post a new service request
func (h *Handler) CreateService(c echo.Context) error {
	actor, ok := h.actor(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	created, err := h.engine.CreateServiceRequest(c.Request().Context(), actor, req)
	if err != nil {
		return h.fail(c, err)
	}
	h.log.Info("service request created", "service_id", created.ID, "client_id", actor.ID)
	return c.JSON(http.StatusCreated, created)
}

// ListOpen returns the feed of requests providers can still take on.
// Query: q, min_price, max_price, limit (1..100, default 20), offset.
func (h *Handler) ListOpen(c echo.Context) error {
	q := FeedQuery{Search: c.QueryParam("q"), Limit: 20}
	for _, p := range []struct {
		name string
		dst  *decimal.NullDecimal
	}{{"min_price", &q.MinPrice}, {"max_price", &q.MaxPrice}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + p.name})
		}
		*p.dst = decimal.NewNullDecimal(d)
	}
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			q.Limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			q.Offset = v
		}
	}

	reqs, err := h.projection.SearchOpenRequests(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

func (h *Handler) GetService(c echo.Context) error {
	req, err := h.projection.GetServiceRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// ListMine returns the caller's own posted requests.
func (h *Handler) ListMine(c echo.Context) error {
	actor, ok := h.actor(c)
	if !ok {
		return unauthorized(c)
	}
	reqs, err := h.projection.ListClientRequests(c.Request().Context(), actor.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

func (h *Handler) Accept(c echo.Context) error {
	return h.transition(c, func(a Actor) (ServiceRequest, error) {
		return h.negotiator.Accept(c.Request().Context(), c.Param("id"), a)
	})
}

func (h *Handler) Offer(c echo.Context) error {
	var body CounterOffer
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	return h.transition(c, func(a Actor) (ServiceRequest, error) {
		return h.negotiator.ProposeCounterOffer(c.Request().Context(), c.Param("id"), a, body.Price)
	})
}

func (h *Handler) Approve(c echo.Context) error {
	return h.transition(c, func(a Actor) (ServiceRequest, error) {
		return h.negotiator.ApproveProposal(c.Request().Context(), c.Param("id"), a)
	})
}

func (h *Handler) Reject(c echo.Context) error {
	return h.transition(c, func(a Actor) (ServiceRequest, error) {
		return h.negotiator.RejectProposal(c.Request().Context(), c.Param("id"), a)
	})
}

func (h *Handler) Finish(c echo.Context) error {
	return h.transition(c, func(a Actor) (ServiceRequest, error) {
		return h.negotiator.Finish(c.Request().Context(), c.Param("id"), a)
	})
}

// MyProjects lists the provider's accepted and finished work. The :id form
// is kept for older clients and must name the caller.
func (h *Handler) MyProjects(c echo.Context) error {
	actor, ok, err := h.self(c)
	if !ok {
		return err
	}
	reqs, err := h.projection.ListProviderProjects(c.Request().Context(), actor.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

func (h *Handler) Earnings(c echo.Context) error {
	actor, ok, err := h.self(c)
	if !ok {
		return err
	}
	earnings, err := h.projection.EarningsSummary(c.Request().Context(), actor.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, earnings)
}

// CreateReview lets the client rate the provider of a finished request
func (h *Handler) CreateReview(c echo.Context) error {
	actor, ok := h.actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req CreateReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	review, err := h.reviews.Create(c.Request().Context(), c.Param("id"), actor, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, review)
}

func (h *Handler) GetServiceReview(c echo.Context) error {
	review, err := h.reviews.ForService(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, review)
}

// ProviderReviews returns a provider's reviews and rating summary (public)
func (h *Handler) ProviderReviews(c echo.Context) error {
	reviews, summary, err := h.reviews.ForProvider(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reviews": reviews, "summary": summary})
}

func (h *Handler) transition(c echo.Context, fire func(Actor) (ServiceRequest, error)) error {
	actor, ok := h.actor(c)
	if !ok {
		return unauthorized(c)
	}
	updated, err := fire(actor)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) actor(c echo.Context) (Actor, bool) {
	a, err := h.currentUser(c)
	return a, err == nil && a.ID != ""
}

// self resolves the caller and, when the route carries :id, checks it names
// the caller. When ok is false the error response has been written and err
// is the result of writing it.
func (h *Handler) self(c echo.Context) (actor Actor, ok bool, err error) {
	actor, ok = h.actor(c)
	if !ok {
		return Actor{}, false, unauthorized(c)
	}
	if id := c.Param("id"); id != "" && id != actor.ID {
		return Actor{}, false, c.JSON(http.StatusForbidden, echo.Map{"error": "can only view your own projects and earnings"})
	}
	return actor, true, nil
}

func (h *Handler) fail(c echo.Context, err error) error {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}
	return c.JSON(code, echo.Map{"error": err.Error()})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
