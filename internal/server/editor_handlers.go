package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/editor"
	"github.com/MarcoPoloResearchLab/idcards/internal/export"
	"github.com/MarcoPoloResearchLab/idcards/internal/render"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const editorSessionContextKey = "idcards_editor_session"

type openEditorRequestPayload struct {
	TemplateID string       `json:"templateId"`
	Record     cards.Record `json:"record"`
}

type pointerRequestPayload struct {
	Kind      string  `json:"kind"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ElementID string  `json:"elementId"`
}

type commandRequestPayload struct {
	Command     string            `json:"command"`
	ElementID   string            `json:"elementId"`
	TargetID    string            `json:"targetId"`
	Tool        string            `json:"tool"`
	TextKind    cards.TextKind    `json:"textKind"`
	ShapeKind   cards.ShapeType   `json:"shapeKind"`
	ShapeType   cards.ShapeType   `json:"shapeType"`
	ElementType cards.ElementType `json:"elementType"`
	Side        string            `json:"side"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Style       *cards.StylePatch `json:"style"`
	Content     *string           `json:"content"`
	Field       string            `json:"field"`
	Geometry    *editor.Geometry  `json:"geometry"`
	TemplateID  string            `json:"templateId"`
	Record      cards.Record      `json:"record"`
	Zoom        *float64          `json:"zoom"`
	Background  *cards.Background `json:"background"`
	Locked      *bool             `json:"locked"`
	Visible     *bool             `json:"visible"`
	Opacity     *float64          `json:"opacity"`
}

type saveRequestPayload struct {
	Name string `json:"name"`
}

type editorResponsePayload struct {
	SessionID string         `json:"sessionId"`
	Outcome   editor.Outcome `json:"outcome"`
	Warnings  []string       `json:"warnings,omitempty"`
	State     editor.State   `json:"state"`
}

type documentChangePayload struct {
	SessionID string            `json:"sessionId"`
	Kind      editor.ChangeKind `json:"kind"`
	Side      cards.Side        `json:"side"`
	Committed bool              `json:"committed"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
}

// sideSnapshot is what a render pass needs, copied out of the session lock.
type sideSnapshot struct {
	elements   []cards.Element
	record     cards.Record
	background cards.Background
	zoom       float64
}

func (h *httpHandler) handleOpenEditor(c *gin.Context) {
	var request openEditorRequestPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	templateID := strings.TrimSpace(request.TemplateID)
	if templateID == "" {
		templateID = templates.DefaultTemplateID
	}

	document, err := editor.NewDocument(editor.Config{
		Resolver:   h.adapter,
		IDProvider: h.elementIDs,
		Logger:     h.logger,
	})
	if err != nil {
		h.respondError(c, err, "editor_open_failed")
		return
	}
	document.SetRecord(request.Record)
	warnings, err := document.ApplyTemplate(c.Request.Context(), templateID)
	if err != nil {
		h.respondError(c, err, "template_apply_failed")
		return
	}

	session, err := h.editors.open(currentUserID(c), document, func(sessionID string) func() {
		return document.Subscribe(func(change editor.Change) {
			if change.Kind == editor.ChangeLive {
				return
			}
			h.realtime.Publish(RealtimeMessage{
				SessionID: sessionID,
				EventType: RealtimeEventDocumentChanged,
				Change:    change,
				Timestamp: time.Now().UTC(),
			})
		})
	})
	if err != nil {
		h.respondError(c, err, "editor_open_failed")
		return
	}
	h.logger.Info("editor session opened", zap.String("session_id", session.id), zap.String("template_id", templateID))

	var response editorResponsePayload
	session.with(func(document *editor.Document) {
		response = editorResponsePayload{SessionID: session.id, Warnings: warnings, State: document.State()}
	})
	c.JSON(http.StatusCreated, response)
}

func (h *httpHandler) loadEditorSession(c *gin.Context) {
	session, err := h.editors.get(c.Param("id"), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "editor_session_not_found")
		return
	}
	c.Set(editorSessionContextKey, session)
	c.Next()
}

func editorSessionFrom(c *gin.Context) *editorSession {
	value, _ := c.Get(editorSessionContextKey)
	session, _ := value.(*editorSession)
	return session
}

func (h *httpHandler) handleEditorState(c *gin.Context) {
	session := editorSessionFrom(c)
	var state editor.State
	session.with(func(document *editor.Document) {
		state = document.State()
	})
	c.JSON(http.StatusOK, editorResponsePayload{SessionID: session.id, State: state})
}

func (h *httpHandler) handleCloseEditor(c *gin.Context) {
	session := editorSessionFrom(c)
	h.editors.close(session.id)
	h.logger.Info("editor session closed", zap.String("session_id", session.id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleEditorPointer(c *gin.Context) {
	var request pointerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	event := editor.PointerEvent{X: request.X, Y: request.Y, ElementID: request.ElementID}
	var apply func(controller *editor.Controller) editor.Outcome
	switch strings.ToLower(strings.TrimSpace(request.Kind)) {
	case "down":
		apply = func(controller *editor.Controller) editor.Outcome { return controller.PointerDown(event) }
	case "move":
		apply = func(controller *editor.Controller) editor.Outcome { return controller.PointerMove(event) }
	case "up":
		apply = func(controller *editor.Controller) editor.Outcome { return controller.PointerUp(event) }
	case "leave":
		apply = func(controller *editor.Controller) editor.Outcome { return controller.PointerLeave() }
	case "click":
		apply = func(controller *editor.Controller) editor.Outcome { return controller.Click(event) }
	case "double":
		apply = func(controller *editor.Controller) editor.Outcome { return controller.DoubleClick(event) }
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_pointer_kind"})
		return
	}
	h.respondEditor(c, func(document *editor.Document) (editor.Outcome, []string, error) {
		return apply(document.Controller()), nil, nil
	})
}

func (h *httpHandler) handleEditorKey(c *gin.Context) {
	var request editor.KeyEvent
	if err := c.ShouldBindJSON(&request); err != nil || request.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.respondEditor(c, func(document *editor.Document) (editor.Outcome, []string, error) {
		return document.Controller().HandleKey(request), nil, nil
	})
}

var errMissingArgument = errors.New("command argument missing")

func (h *httpHandler) handleEditorCommand(c *gin.Context) {
	var request commandRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	command := strings.ToLower(strings.TrimSpace(request.Command))
	if _, known := editorCommands[command]; !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_command"})
		return
	}
	ctx := c.Request.Context()
	h.respondEditor(c, func(document *editor.Document) (editor.Outcome, []string, error) {
		if command == "template" {
			warnings, err := document.ApplyTemplate(ctx, request.TemplateID)
			return editor.Outcome{Changed: err == nil && len(warnings) == 0}, warnings, err
		}
		outcome, err := editorCommands[command](document, request)
		return outcome, nil, err
	})
}

type editorCommand func(document *editor.Document, request commandRequestPayload) (editor.Outcome, error)

// editorCommands maps the panel and toolbar actions onto the document. The
// template command is handled separately because it needs the request context.
var editorCommands = map[string]editorCommand{
	"template": nil,
	"tool": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		tool, err := editor.ParseTool(r.Tool)
		if err != nil {
			return editor.Outcome{Warning: "unknown_tool"}, nil
		}
		return d.Controller().SetTool(tool), nil
	},
	"text_kind": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().SetTextKind(r.TextKind), nil
	},
	"shape_kind": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().SetShapeKind(r.ShapeKind), nil
	},
	"side": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		side, err := cards.ParseSide(r.Side)
		if err != nil {
			return editor.Outcome{}, err
		}
		return d.SwitchSide(side), nil
	},
	"select": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().Select(r.ElementID), nil
	},
	"clear_selection": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().ClearSelection(), nil
	},
	"add": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().AddElement(r.ElementType, r.X, r.Y), nil
	},
	"duplicate": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().Duplicate(), nil
	},
	"delete": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().Delete(), nil
	},
	"forward": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().BringForward(), nil
	},
	"backward": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().SendBackward(), nil
	},
	"move_layer": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().MoveLayer(r.ElementID, r.TargetID), nil
	},
	"undo": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().Undo(), nil
	},
	"redo": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().Redo(), nil
	},
	"style": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Style == nil {
			return editor.Outcome{}, fmt.Errorf("%w: style", errMissingArgument)
		}
		return d.Controller().SetStyle(r.ElementID, *r.Style), nil
	},
	"content": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Content == nil {
			return editor.Outcome{}, fmt.Errorf("%w: content", errMissingArgument)
		}
		return d.Controller().SetContent(r.ElementID, *r.Content), nil
	},
	"binding": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().SetBinding(r.ElementID, r.Field), nil
	},
	"static": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().SetStatic(r.ElementID), nil
	},
	"geometry": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Geometry == nil {
			return editor.Outcome{}, fmt.Errorf("%w: geometry", errMissingArgument)
		}
		return d.Controller().SetGeometry(r.ElementID, *r.Geometry), nil
	},
	"shape_type": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().SetShapeType(r.ElementID, r.ShapeType), nil
	},
	"locked": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Locked == nil {
			return editor.Outcome{}, fmt.Errorf("%w: locked", errMissingArgument)
		}
		return d.Controller().SetLocked(r.ElementID, *r.Locked), nil
	},
	"visible": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Visible == nil {
			return editor.Outcome{}, fmt.Errorf("%w: visible", errMissingArgument)
		}
		return d.Controller().SetVisible(r.ElementID, *r.Visible), nil
	},
	"opacity": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Opacity == nil {
			return editor.Outcome{}, fmt.Errorf("%w: opacity", errMissingArgument)
		}
		return d.Controller().SetOpacity(r.ElementID, *r.Opacity), nil
	},
	"record": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		d.SetRecord(r.Record)
		return editor.Outcome{Changed: true}, nil
	},
	"zoom": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Zoom == nil {
			return editor.Outcome{}, fmt.Errorf("%w: zoom", errMissingArgument)
		}
		return d.Controller().SetZoom(*r.Zoom), nil
	},
	"zoom_in": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().ZoomIn(), nil
	},
	"zoom_out": func(d *editor.Document, _ commandRequestPayload) (editor.Outcome, error) {
		return d.Controller().ZoomOut(), nil
	},
	"background": func(d *editor.Document, r commandRequestPayload) (editor.Outcome, error) {
		if r.Background == nil {
			return editor.Outcome{}, fmt.Errorf("%w: background", errMissingArgument)
		}
		return d.SetBackground(*r.Background), nil
	},
}

// respondEditor runs apply under the session lock and answers with the outcome
// and the resulting state.
func (h *httpHandler) respondEditor(c *gin.Context, apply func(document *editor.Document) (editor.Outcome, []string, error)) {
	session := editorSessionFrom(c)
	var (
		response editorResponsePayload
		err      error
	)
	session.with(func(document *editor.Document) {
		var outcome editor.Outcome
		var warnings []string
		outcome, warnings, err = apply(document)
		response = editorResponsePayload{SessionID: session.id, Outcome: outcome, Warnings: warnings, State: document.State()}
	})
	if errors.Is(err, errMissingArgument) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_argument"})
		return
	}
	if err != nil {
		h.respondError(c, err, "editor_command_failed")
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) snapshotSide(c *gin.Context, session *editorSession) (sideSnapshot, cards.Side, bool) {
	var (
		snapshot sideSnapshot
		active   cards.Side
	)
	session.with(func(document *editor.Document) {
		active = document.Side()
	})
	side, err := parseSideQuery(c, active)
	if err != nil {
		h.respondError(c, err, "invalid_side")
		return sideSnapshot{}, "", false
	}
	session.with(func(document *editor.Document) {
		snapshot = sideSnapshot{
			elements:   document.Elements(side),
			record:     document.Record(),
			background: document.Background(),
			zoom:       document.Controller().Zoom(),
		}
	})
	return snapshot, side, true
}

func (h *httpHandler) renderSnapshot(snapshot sideSnapshot, zoom float64) render.Tree {
	background := snapshot.background
	return render.Render(snapshot.elements, snapshot.record, h.renderOptions(zoom, &background))
}

func (h *httpHandler) handleEditorSVG(c *gin.Context) {
	snapshot, _, ok := h.snapshotSide(c, editorSessionFrom(c))
	if !ok {
		return
	}
	var buffer bytes.Buffer
	render.WriteSVG(&buffer, h.renderSnapshot(snapshot, snapshot.zoom))
	c.Data(http.StatusOK, "image/svg+xml", buffer.Bytes())
}

func (h *httpHandler) handleEditorPNG(c *gin.Context) {
	session := editorSessionFrom(c)
	snapshot, side, ok := h.snapshotSide(c, session)
	if !ok {
		return
	}
	payload, err := h.bridge.Rasterize(h.renderSnapshot(snapshot, 1))
	if err != nil {
		h.respondError(c, err, "rasterize_failed")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("card-%s.png", side)))
	c.Data(http.StatusOK, "image/png", payload)
}

func (h *httpHandler) handleEditorPDF(c *gin.Context) {
	session := editorSessionFrom(c)
	var sides [2]sideSnapshot
	session.with(func(document *editor.Document) {
		for index, side := range []cards.Side{cards.SideFront, cards.SideBack} {
			sides[index] = sideSnapshot{
				elements:   document.Elements(side),
				record:     document.Record(),
				background: document.Background(),
			}
		}
	})
	pages := make([][]byte, 0, len(sides))
	for _, snapshot := range sides {
		page, err := h.bridge.Rasterize(h.renderSnapshot(snapshot, 1))
		if err != nil {
			h.respondError(c, err, "rasterize_failed")
			return
		}
		pages = append(pages, page)
	}
	document, err := export.ImagesToPDF(pages, export.CardSize)
	if err != nil {
		h.respondError(c, err, "pdf_assembly_failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="card.pdf"`)
	c.Data(http.StatusOK, "application/pdf", document)
}

// handleEditorSave stores the document as a user template. The first save of a
// session creates the template and later saves update it.
func (h *httpHandler) handleEditorSave(c *gin.Context) {
	var request saveRequestPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	session := editorSessionFrom(c)
	ctx := c.Request.Context()

	session.saveMu.Lock()
	defer session.saveMu.Unlock()

	var (
		snapshot   templates.Template
		templateID string
	)
	session.with(func(document *editor.Document) {
		snapshot = document.SaveSnapshot()
		templateID = session.templateID
	})
	if name := strings.TrimSpace(request.Name); name != "" {
		snapshot.Name = name
	}

	var (
		saved   templates.Template
		err     error
		created bool
	)
	if templateID != "" {
		saved, err = h.templates.Update(ctx, templateID, templates.Patch{
			Name:           &snapshot.Name,
			Colors:         &snapshot.Colors,
			Front:          snapshot.Front,
			Back:           snapshot.Back,
			MainBackground: snapshot.MainBackground,
		})
	} else {
		snapshot.ID = ""
		snapshot.OwnerID = session.ownerID
		saved, err = h.templates.Create(ctx, snapshot)
		if err == nil {
			created = true
			session.with(func(*editor.Document) {
				session.templateID = saved.ID
			})
		}
	}
	if err != nil {
		h.respondError(c, err, "template_save_failed")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, saved)
}

// handleEditorEvents streams document-change events for the session as SSE.
func (h *httpHandler) handleEditorEvents(c *gin.Context) {
	session := editorSessionFrom(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, session.id)
	defer cleanup()

	ticker := time.NewTicker(realtimeHeartbeatInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "timestamp": time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, documentChangePayload{
				SessionID: message.SessionID,
				Kind:      message.Change.Kind,
				Side:      message.Change.Side,
				Committed: message.Change.Committed,
				Timestamp: message.Timestamp,
				Source:    realtimeSourceBackend,
			})
			return true
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "timestamp": now.UTC()})
			return true
		}
	})
}
