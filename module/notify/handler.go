package notify

import (
	"net/http"
	"strconv"

	"NotifyGate/logger"
	mwsec "NotifyGate/middleware/security"
	"NotifyGate/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler exposes the notification history over HTTP.
type Handler struct {
	store *Store
	// Broadcast pushes the read-state echo to the owner's live
	// connections; nil disables the echo (tests).
	Broadcast func(ownerID string, ids []string)
	// Notify fans a freshly appended notification out to the owner's
	// live connections; nil disables fan-out (tests).
	Notify func(n *Notification)
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the authenticated API.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.listNotifications)
	rg.PATCH("/notifications", h.markRead)
}

// RegisterInternalRoutes mounts the business-event ingress.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/notifications", h.appendNotification)
}

func (h *Handler) listNotifications(c *gin.Context) {
	ownerID := mwsec.PrincipalID(c)
	limit, _ := strconv.Atoi(c.Query("limit"))
	cursor := c.Query("cursor")

	page, err := h.store.ListPage(c.Request.Context(), ownerID, limit, cursor)
	if err != nil {
		if errs.ErrArgs.Is(err) {
			c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail("bad cursor"))
			return
		}
		logger.Errorf("[notify] list page owner=%s err=%v", ownerID, err)
		c.JSON(http.StatusServiceUnavailable, errs.ErrStoreUnavailable)
		return
	}
	if page.Items == nil {
		page.Items = []*Notification{}
	}
	c.JSON(http.StatusOK, page)
}

type markReadReq struct {
	IDs []string `json:"ids"`
}

type markReadResp struct {
	Updated int `json:"updated"`
}

func (h *Handler) markRead(c *gin.Context) {
	ownerID := mwsec.PrincipalID(c)

	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	changed, err := h.store.MarkRead(c.Request.Context(), ownerID, req.IDs)
	if err != nil {
		logger.Errorf("[notify] mark read owner=%s err=%v", ownerID, err)
		c.JSON(http.StatusServiceUnavailable, errs.ErrStoreUnavailable)
		return
	}
	// echo only the ids that changed; skipped ids would desync other tabs
	if len(changed) > 0 && h.Broadcast != nil {
		h.Broadcast(ownerID, changed)
	}
	c.JSON(http.StatusOK, markReadResp{Updated: len(changed)})
}

type appendReq struct {
	OwnerID string         `json:"owner_id" binding:"required"`
	Kind    string         `json:"kind" binding:"required"`
	Data    map[string]any `json:"data"`
}

// appendNotification is the HTTP ingress for business events. A store
// failure answers 503 so the caller can retry; nothing is cached or
// fanned out in that case.
func (h *Handler) appendNotification(c *gin.Context) {
	var req appendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrArgs.WithDetail(err.Error()))
		return
	}

	n, err := h.store.Append(c.Request.Context(), req.OwnerID, req.Kind, req.Data)
	if err != nil {
		logger.Errorf("[notify] append owner=%s kind=%s err=%v", req.OwnerID, req.Kind, err)
		c.JSON(http.StatusServiceUnavailable, errs.ErrStoreUnavailable)
		return
	}
	if h.Notify != nil {
		h.Notify(n)
	}
	c.JSON(http.StatusCreated, n)
}
