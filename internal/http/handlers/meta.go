package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type MetaHandler struct {
	env         string
	version     string
	autoApprove bool
}

func NewMetaHandler(env, version string, autoApprove bool) *MetaHandler {
	return &MetaHandler{env: env, version: version, autoApprove: autoApprove}
}

func (h *MetaHandler) GetMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":                 "Naitive Lender Sync",
		"version":              h.version,
		"env":                  h.env,
		"auto_approve_updates": h.autoApprove,
	})
}
