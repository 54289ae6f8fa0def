package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/datasets"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/gin-gonic/gin"
)

const (
	defaultSampleRows = 3
	maxSampleRows     = 100
)

func (h *httpHandler) handleListTemplates(c *gin.Context) {
	list, err := h.templates.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "template_list_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

func (h *httpHandler) handleGetTemplate(c *gin.Context) {
	template, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "template_lookup_failed")
		return
	}
	c.JSON(http.StatusOK, template)
}

func (h *httpHandler) handleCreateTemplate(c *gin.Context) {
	var request templates.Template
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	request.OwnerID = currentUserID(c)
	request.BuiltIn = false
	created, err := h.templates.Create(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err, "template_create_failed")
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleUpdateTemplate(c *gin.Context) {
	var patch templates.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.templates.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err, "template_update_failed")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteTemplate(c *gin.Context) {
	if err := h.templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "template_delete_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSampleCSV serves a sheet whose header covers the template's bound fields.
func (h *httpHandler) handleSampleCSV(c *gin.Context) {
	rows := defaultSampleRows
	if raw := c.Query("rows"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSampleRows {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rows"})
			return
		}
		rows = parsed
	}

	template, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "template_lookup_failed")
		return
	}
	front, err := templates.ElementsFor(template, cards.SideFront, nil)
	if err != nil {
		h.respondError(c, err, "template_expand_failed")
		return
	}
	back, err := templates.ElementsFor(template, cards.SideBack, nil)
	if err != nil {
		h.respondError(c, err, "template_expand_failed")
		return
	}
	payload, err := datasets.SampleCSV(datasets.FieldsFromElements(front, back), rows)
	if err != nil {
		h.respondError(c, err, "sample_csv_failed")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", template.ID+"-sample.csv"))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", payload)
}
