package router

import (
	"github.com/go-citadel/citadel/internal/engine/model"
	httpx "github.com/go-citadel/citadel/pkg/http"
	"github.com/gofiber/fiber/v2"
)

// providerConfigRouter registers encryption provider config routes
func (rt *Router) providerConfigRouter(r fiber.Router) {
	group := r.Group("/providers")
	{
		group.Post("/", rt.saveProviderConfig)        // POST /providers - create or replace a provider config
		group.Get("/", rt.getProviderConfigList)      // GET /providers - list provider configs
		group.Get("/default", rt.getDefaultProvider)  // GET /providers/default - effective default provider
		group.Delete("/:configId", rt.deleteProviderConfig) // DELETE /providers/:configId
	}
}

type providerConfigReq struct {
	// ConfigId set means update in place; empty creates a new config.
	ConfigId   string `json:"configId"`
	AccountId  string `json:"accountId"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	IsDefault  bool   `json:"isDefault"`
	Endpoint   string `json:"endpoint"`
	KeyRef     string `json:"keyRef"`
	AccessKey  string `json:"accessKey"`
	Credential string `json:"credential"`
	Actor      string `json:"actor"`
}

// saveProviderConfig validates the config against the live provider before
// persisting it, the credential is sealed at rest
func (rt *Router) saveProviderConfig(c *fiber.Ctx) error {
	var req providerConfigReq
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, "invalid request body", c.Path())
	}
	if req.AccountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	config := &model.ProviderConfig{
		ConfigId:  req.ConfigId,
		AccountId: req.AccountId,
		Name:      req.Name,
		Type:      model.EncryptionType(req.Type),
		IsDefault: req.IsDefault,
		Endpoint:  req.Endpoint,
		KeyRef:    req.KeyRef,
		AccessKey: req.AccessKey,
	}
	configId, err := rt.Services.ProviderConfig.Save(c.Context(), config, req.Credential, req.Actor)
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"configId": configId})
}

// getProviderConfigList lists provider configs, credentials stay sealed
func (rt *Router) getProviderConfigList(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	configs, err := rt.Services.ProviderConfig.List(accountId)
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"list": configs})
}

// getDefaultProvider resolves the provider new secrets will be encrypted with
func (rt *Router) getDefaultProvider(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	config, err := rt.Services.ProviderConfig.Default(accountId)
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, config)
}

// deleteProviderConfig deletes a provider config, rejected while secrets are
// still encrypted with it or a transition touches it
func (rt *Router) deleteProviderConfig(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	if err := rt.Services.ProviderConfig.Delete(accountId, c.Params("configId")); err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepNotDetail(c)
}
