package router

import (
	"github.com/go-citadel/citadel/internal/engine/model"
	httpx "github.com/go-citadel/citadel/pkg/http"
	"github.com/gofiber/fiber/v2"
)

// transitionRouter registers provider transition routes
func (rt *Router) transitionRouter(r fiber.Router) {
	group := r.Group("/transitions")
	{
		group.Post("/", rt.requestTransition) // POST /transitions - request a provider transition
	}
}

type transitionReq struct {
	AccountId    string `json:"accountId"`
	FromType     string `json:"fromType"`
	FromConfigId string `json:"fromConfigId"`
	ToType       string `json:"toType"`
	ToConfigId   string `json:"toConfigId"`
}

// requestTransition validates both providers and enqueues the re-encryption
// of every record held by the source provider
func (rt *Router) requestTransition(c *fiber.Ctx) error {
	var req transitionReq
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, "invalid request body", c.Path())
	}
	if req.AccountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	transitionId, err := rt.Services.Transition.Request(
		c.Context(),
		req.AccountId,
		model.EncryptionType(req.FromType), req.FromConfigId,
		model.EncryptionType(req.ToType), req.ToConfigId,
	)
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"transitionId": transitionId})
}
