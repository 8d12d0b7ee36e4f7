package router

import (
	"strconv"

	"github.com/go-citadel/citadel/internal/engine/model"
	httpx "github.com/go-citadel/citadel/pkg/http"
	"github.com/gofiber/fiber/v2"
)

// secretRouter registers secret related routes
func (rt *Router) secretRouter(r fiber.Router) {
	secretGroup := r.Group("/secrets")
	{
		secretGroup.Post("/", rt.createSecret)                      // POST /secrets - create secret
		secretGroup.Post("/file", rt.createSecretFile)              // POST /secrets/file - upload secret file
		secretGroup.Get("/", rt.getSecretList)                      // GET /secrets - list secrets (masked)
		secretGroup.Get("/:recordId", rt.getSecret)                 // GET /secrets/:recordId - get secret (masked)
		secretGroup.Get("/:recordId/changes", rt.getChangeLogs)     // GET /secrets/:recordId/changes - change history
		secretGroup.Get("/:recordId/usage", rt.getUsage)            // GET /secrets/:recordId/usage - setup-time references
		secretGroup.Get("/:recordId/accesses", rt.getUsageLogs)     // GET /secrets/:recordId/accesses - runtime access log
		secretGroup.Put("/:recordId", rt.updateSecret)              // PUT /secrets/:recordId - update secret
		secretGroup.Put("/:recordId/file", rt.updateSecretFile)     // PUT /secrets/:recordId/file - replace secret file
		secretGroup.Delete("/:recordId", rt.deleteSecret)           // DELETE /secrets/:recordId - delete secret
	}
}

type secretReq struct {
	AccountId string             `json:"accountId"`
	Name      string             `json:"name"`
	Value     string             `json:"value"`
	Scopes    []model.UsageScope `json:"scopes"`
	Actor     string             `json:"actor"`
}

// createSecret creates a new text secret
func (rt *Router) createSecret(c *fiber.Ctx) error {
	var req secretReq
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, "invalid request body", c.Path())
	}
	if req.AccountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	recordId, err := rt.Services.Secret.Save(c.Context(), req.AccountId, req.Name, []byte(req.Value), req.Scopes, req.Actor)
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"recordId": recordId})
}

// createSecretFile uploads a file secret, the file content is the secret value
func (rt *Router) createSecretFile(c *fiber.Ctx) error {
	accountId := c.FormValue("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}
	name := c.FormValue("name")
	actor := c.FormValue("actor")

	fh, err := c.FormFile("file")
	if err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "file is required", c.Path())
	}
	f, err := fh.Open()
	if err != nil {
		return httpx.WithRepErrMsg(c, httpx.Failed.Code, err.Error(), c.Path())
	}
	defer f.Close()

	recordId, err := rt.Services.Secret.SaveFile(c.Context(), accountId, name, f, nil, actor)
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"recordId": recordId})
}

// updateSecret updates name, value or usage restrictions of a secret
func (rt *Router) updateSecret(c *fiber.Ctx) error {
	recordId := c.Params("recordId")

	var req secretReq
	if err := c.BodyParser(&req); err != nil {
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, "invalid request body", c.Path())
	}
	if req.AccountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	var value []byte
	if req.Value != "" {
		value = []byte(req.Value)
	}
	if err := rt.Services.Secret.Update(c.Context(), req.AccountId, recordId, req.Name, value, req.Scopes, req.Actor); err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepNotDetail(c)
}

// updateSecretFile replaces the content of a file secret
func (rt *Router) updateSecretFile(c *fiber.Ctx) error {
	recordId := c.Params("recordId")

	accountId := c.FormValue("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}
	name := c.FormValue("name")
	actor := c.FormValue("actor")

	fh, err := c.FormFile("file")
	if err != nil {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "file is required", c.Path())
	}
	f, err := fh.Open()
	if err != nil {
		return httpx.WithRepErrMsg(c, httpx.Failed.Code, err.Error(), c.Path())
	}
	defer f.Close()

	if err := rt.Services.Secret.UpdateFile(c.Context(), accountId, recordId, name, f, nil, actor); err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepNotDetail(c)
}

// getSecret gets a secret by id, the value is always masked
func (rt *Router) getSecret(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	secret, err := rt.Services.Secret.Get(accountId, c.Params("recordId"))
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, secret)
}

// getSecretList gets secret list with pagination and keyword filter
func (rt *Router) getSecretList(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	pageNum, _ := strconv.Atoi(c.Query("pageNum", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", "20"))
	secretType := c.Query("secretType", "")
	keyword := c.Query("keyword", "")
	withStats := c.QueryBool("includeUsageStats", false)

	secrets, total, err := rt.Services.Secret.List(accountId, secretType, keyword, pageNum, pageSize, withStats)
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{
		"list":     secrets,
		"total":    total,
		"pageNum":  pageNum,
		"pageSize": pageSize,
	})
}

// getChangeLogs gets the change history of a secret, newest first
func (rt *Router) getChangeLogs(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	logs, err := rt.Services.Secret.ChangeLogs(accountId, c.Params("recordId"))
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"list": logs})
}

// getUsage gets the setup-time references of a secret
func (rt *Router) getUsage(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	refs, err := rt.Services.Binding.Usage(accountId, c.Params("recordId"))
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"list": refs})
}

// getUsageLogs gets the runtime access log of a secret
func (rt *Router) getUsageLogs(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	logs, err := rt.Services.Runtime.UsageLogs(accountId, c.Params("recordId"))
	if err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepJSON(c, fiber.Map{"list": logs})
}

// deleteSecret deletes a secret, rejected while any reference remains
func (rt *Router) deleteSecret(c *fiber.Ctx) error {
	accountId := c.Query("accountId")
	if accountId == "" {
		return httpx.WithRepErrMsg(c, httpx.AccountIdIsEmpty.Code, httpx.AccountIdIsEmpty.Msg, c.Path())
	}

	if err := rt.Services.Secret.Delete(accountId, c.Params("recordId")); err != nil {
		return httpx.WithRepErrMsg(c, errCode(err), err.Error(), c.Path())
	}

	return httpx.WithRepNotDetail(c)
}
