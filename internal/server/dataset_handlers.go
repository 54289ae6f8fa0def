package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/datasets"
	"github.com/MarcoPoloResearchLab/idcards/internal/export"
	"github.com/MarcoPoloResearchLab/idcards/internal/render"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	formatPDF = "pdf"
	formatPNG = "png"
)

type datasetRequestPayload struct {
	Name      string         `json:"name"`
	Columns   []string       `json:"columns"`
	Rows      []cards.Record `json:"rows"`
	Normalize bool           `json:"normalize"`
}

type matchRequestPayload struct {
	Policy string `json:"policy"`
}

type generateRequestPayload struct {
	TemplateID  string `json:"templateId"`
	Format      string `json:"format"`
	MatchPhotos bool   `json:"matchPhotos"`
	Row         int    `json:"row"`
	Side        string `json:"side"`
}

func (h *httpHandler) handleListDatasets(c *gin.Context) {
	summaries, err := h.datasets.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "dataset_list_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"datasets": summaries})
}

func (h *httpHandler) handleGetDataset(c *gin.Context) {
	dataset, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "dataset_lookup_failed")
		return
	}
	c.JSON(http.StatusOK, dataset)
}

// handleCreateDataset accepts either a multipart CSV upload in the "file" field or a
// JSON body. CSV imports are always normalized onto the card field names.
func (h *httpHandler) handleCreateDataset(c *gin.Context) {
	var dataset datasets.Dataset
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
			return
		}
		file, err := header.Open()
		if err != nil {
			h.respondError(c, err, "upload_read_failed")
			return
		}
		defer file.Close()

		name := strings.TrimSpace(c.PostForm("name"))
		if name == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
		parsed, err := datasets.ParseCSV(name, file)
		if err != nil {
			h.respondError(c, err, "invalid_csv")
			return
		}
		dataset = datasets.NormalizeDataset(parsed)
	} else {
		var request datasetRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		dataset = datasets.Dataset{Name: request.Name, Columns: request.Columns, Rows: request.Rows}
		if request.Normalize {
			dataset = datasets.NormalizeDataset(dataset)
		}
	}
	dataset.OwnerID = currentUserID(c)

	created, err := h.datasets.Create(c.Request.Context(), dataset)
	if err != nil {
		h.respondError(c, err, "dataset_create_failed")
		return
	}
	c.JSON(http.StatusCreated, created.Summarize())
}

func (h *httpHandler) handleDeleteDataset(c *gin.Context) {
	if err := h.datasets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "dataset_delete_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMatchPhotos(c *gin.Context) {
	var request matchRequestPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	policy := h.matchPolicy
	if request.Policy != "" {
		parsed, err := datasets.ParseMatchPolicy(request.Policy)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_match_policy"})
			return
		}
		policy = parsed
	}
	dataset, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "dataset_lookup_failed")
		return
	}
	result, err := h.matchRows(c.Request.Context(), dataset.Rows, policy)
	if err != nil {
		h.respondError(c, err, "photo_list_failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGenerate renders every row against the template. The PDF format holds a
// front and a back CR80 page per row; the PNG format returns one side of one row.
func (h *httpHandler) handleGenerate(c *gin.Context) {
	var request generateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	format := strings.ToLower(strings.TrimSpace(request.Format))
	if format == "" {
		format = formatPDF
	}
	if format != formatPDF && format != formatPNG {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_format"})
		return
	}
	templateID := strings.TrimSpace(request.TemplateID)
	if templateID == "" {
		templateID = templates.DefaultTemplateID
	}

	ctx := c.Request.Context()
	dataset, err := h.datasets.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "dataset_lookup_failed")
		return
	}
	if len(dataset.Rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_dataset"})
		return
	}
	rows := dataset.Rows
	if request.MatchPhotos {
		result, err := h.matchRows(ctx, rows, h.matchPolicy)
		if err != nil {
			h.respondError(c, err, "photo_list_failed")
			return
		}
		rows = result.Rows
	}

	if format == formatPNG {
		if request.Row < 0 || request.Row >= len(rows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_row"})
			return
		}
		side := cards.SideFront
		if request.Side != "" {
			parsed, err := cards.ParseSide(request.Side)
			if err != nil {
				h.respondError(c, err, "invalid_side")
				return
			}
			side = parsed
		}
		pages, err := h.rasterizeRow(ctx, templateID, rows[request.Row], side)
		if err != nil {
			h.respondError(c, err, "generate_failed")
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%d-%s.png", dataset.ID, request.Row+1, side)))
		c.Data(http.StatusOK, "image/png", pages[0])
		return
	}

	images := make([][]byte, 0, len(rows)*2)
	for index, row := range rows {
		pages, err := h.rasterizeRow(ctx, templateID, row, cards.SideFront, cards.SideBack)
		if err != nil {
			h.logger.Error("bulk generation failed", zap.String("dataset_id", dataset.ID), zap.Int("row", index), zap.Error(err))
			h.respondError(c, err, "generate_failed")
			return
		}
		images = append(images, pages...)
	}
	document, err := export.ImagesToPDF(images, export.CardSize)
	if err != nil {
		h.respondError(c, err, "pdf_assembly_failed")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dataset.ID+"-cards.pdf"))
	c.Data(http.StatusOK, "application/pdf", document)
}

func (h *httpHandler) matchRows(ctx context.Context, rows []cards.Record, policy datasets.MatchPolicy) (datasets.MatchResult, error) {
	uploads, err := h.photos.List(ctx)
	if err != nil {
		return datasets.MatchResult{}, err
	}
	return datasets.MatchPhotos(rows, uploads, policy), nil
}

// rasterizeRow resolves the template against one row and paints the requested sides.
func (h *httpHandler) rasterizeRow(ctx context.Context, templateID string, row cards.Record, sides ...cards.Side) ([][]byte, error) {
	resolution, err := h.adapter.Resolve(ctx, templateID, row)
	if err != nil {
		return nil, err
	}
	if !resolution.Found {
		return nil, fmt.Errorf("%w: %s", templates.ErrTemplateNotFound, templateID)
	}
	pages := make([][]byte, 0, len(sides))
	for _, side := range sides {
		elements := resolution.Front
		if side == cards.SideBack {
			elements = resolution.Back
		}
		tree := render.Render(elements, row, h.renderOptions(1, resolution.Template.MainBackground))
		page, err := h.bridge.Rasterize(tree)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (h *httpHandler) renderOptions(zoom float64, background *cards.Background) render.Options {
	return render.Options{
		Zoom:         zoom,
		Background:   background,
		PhotoBaseURL: h.photos.BaseURL(),
		Resolver:     h.photos,
		Logger:       h.logger,
	}
}
