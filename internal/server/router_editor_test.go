package server

import (
	"bytes"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/cards"
	"github.com/MarcoPoloResearchLab/idcards/internal/editor"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	"gorm.io/gorm"
)

func openEditorSession(t *testing.T, env testEnv, cookie *http.Cookie, payload string) editorResponsePayload {
	t.Helper()
	recorder := env.doJSON(t, http.MethodPost, "/editor/sessions", payload, cookie)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected open status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response editorResponsePayload
	decodeJSON(t, recorder, &response)
	return response
}

func TestEditorSessionEditsAndUndo(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)

	opened := openEditorSession(t, env, faculty, `{"templateId":"uni-standard","record":{"full_name":"Jane Doe"}}`)
	if opened.SessionID != "session-1" || opened.State.TemplateID != templates.DefaultTemplateID {
		t.Fatalf("unexpected session %+v", opened)
	}
	if len(opened.State.Front) == 0 || len(opened.State.Back) == 0 || opened.State.CanUndo {
		t.Fatalf("expected freshly generated sides without history, got %+v", opened.State)
	}
	base := "/editor/sessions/" + opened.SessionID
	frontCount := len(opened.State.Front)

	tool := env.doJSON(t, http.MethodPost, base+"/commands", `{"command":"tool","tool":"shape"}`, faculty)
	if tool.Code != http.StatusOK {
		t.Fatalf("unexpected tool status %d: %s", tool.Code, tool.Body.String())
	}
	click := env.doJSON(t, http.MethodPost, base+"/pointer", `{"kind":"click","x":240,"y":150}`, faculty)
	var placed editorResponsePayload
	decodeJSON(t, click, &placed)
	if !placed.Outcome.Committed || placed.Outcome.CreatedID != "el-1" || len(placed.State.Front) != frontCount+1 {
		t.Fatalf("expected a committed shape, got %+v", placed.Outcome)
	}
	if placed.State.Tool != editor.ToolSelect || placed.State.SelectionID != "el-1" {
		t.Fatalf("expected select tool with the new element selected, got %+v", placed.State)
	}

	styled := env.doJSON(t, http.MethodPost, base+"/commands", `{"command":"style","style":{"backgroundColor":"#ff0000"}}`, faculty)
	var afterStyle editorResponsePayload
	decodeJSON(t, styled, &afterStyle)
	if !afterStyle.Outcome.Committed {
		t.Fatalf("expected style edit to commit, got %+v", afterStyle.Outcome)
	}

	undo := env.doJSON(t, http.MethodPost, base+"/keys", `{"key":"z","ctrl":true}`, faculty)
	var afterUndo editorResponsePayload
	decodeJSON(t, undo, &afterUndo)
	if !afterUndo.State.CanRedo {
		t.Fatalf("expected redo to be available after undo")
	}
	for _, element := range afterUndo.State.Front {
		if element.ID == "el-1" && element.Style.BackgroundColor == "#ff0000" {
			t.Fatalf("expected undo to revert the style edit")
		}
	}

	side := env.doJSON(t, http.MethodPost, base+"/commands", `{"command":"side","side":"back"}`, faculty)
	var onBack editorResponsePayload
	decodeJSON(t, side, &onBack)
	if onBack.State.Side != cards.SideBack || onBack.State.SelectionID != "" {
		t.Fatalf("expected back side without selection, got %+v", onBack.State)
	}
	if len(onBack.State.Front) != frontCount+1 {
		t.Fatalf("switching side must keep the front edits")
	}

	testCases := []struct {
		name    string
		path    string
		payload string
		code    string
	}{
		{name: "unknown command", path: "/commands", payload: `{"command":"explode"}`, code: "unknown_command"},
		{name: "missing style", path: "/commands", payload: `{"command":"style"}`, code: "missing_argument"},
		{name: "unknown pointer", path: "/pointer", payload: `{"kind":"hover"}`, code: "unknown_pointer_kind"},
		{name: "empty key", path: "/keys", payload: `{}`, code: "invalid_request"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := env.doJSON(t, http.MethodPost, base+testCase.path, testCase.payload, faculty)
			if recorder.Code != http.StatusBadRequest || errorCodeOf(t, recorder) != testCase.code {
				t.Fatalf("expected 400 %s, got %d %s", testCase.code, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestEditorTemplateMissReportsWarning(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)
	opened := openEditorSession(t, env, faculty, `{}`)
	before := len(opened.State.Front)

	recorder := env.doJSON(t, http.MethodPost, "/editor/sessions/"+opened.SessionID+"/commands", `{"command":"template","templateId":"missing"}`, faculty)
	var response editorResponsePayload
	decodeJSON(t, recorder, &response)
	if recorder.Code != http.StatusOK || len(response.Warnings) != 1 || response.Outcome.Changed {
		t.Fatalf("expected a warning without changes, got %d %+v", recorder.Code, response)
	}
	if len(response.State.Front) != before || response.State.TemplateID != templates.DefaultTemplateID {
		t.Fatalf("template miss must leave the document untouched")
	}
}

func TestEditorRenderAndExport(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)
	opened := openEditorSession(t, env, faculty, `{"record":{"full_name":"Jane Doe","prn":"S-42"}}`)
	base := "/editor/sessions/" + opened.SessionID

	svgResponse := env.do(t, http.MethodGet, base+"/render.svg?side=front", nil, "", faculty)
	if svgResponse.Code != http.StatusOK || svgResponse.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("unexpected svg response %d %q", svgResponse.Code, svgResponse.Header().Get("Content-Type"))
	}
	if !strings.Contains(svgResponse.Body.String(), "Jane Doe") {
		t.Fatalf("expected bound name in svg output")
	}
	if bad := env.do(t, http.MethodGet, base+"/render.svg?side=top", nil, "", faculty); bad.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown side rejection, got %d", bad.Code)
	}

	pngResponse := env.do(t, http.MethodGet, base+"/export.png?side=back", nil, "", faculty)
	if pngResponse.Code != http.StatusOK {
		t.Fatalf("unexpected png status %d", pngResponse.Code)
	}
	if _, err := png.Decode(bytes.NewReader(pngResponse.Body.Bytes())); err != nil {
		t.Fatalf("expected decodable png: %v", err)
	}

	pdfResponse := env.do(t, http.MethodGet, base+"/export.pdf", nil, "", faculty)
	if pdfResponse.Code != http.StatusOK || !bytes.HasPrefix(pdfResponse.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("unexpected pdf response %d", pdfResponse.Code)
	}
}

func TestEditorSaveCreatesThenUpdates(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)
	opened := openEditorSession(t, env, faculty, `{}`)
	base := "/editor/sessions/" + opened.SessionID

	first := env.doJSON(t, http.MethodPost, base+"/save", `{"name":"Faculty Card"}`, faculty)
	if first.Code != http.StatusCreated {
		t.Fatalf("unexpected first save %d: %s", first.Code, first.Body.String())
	}
	var created templates.Template
	decodeJSON(t, first, &created)
	if created.ID != "tpl-1" || created.Name != "Faculty Card" || created.BuiltIn || created.Front == nil || len(created.Front.Elements) != len(opened.State.Front) {
		t.Fatalf("unexpected saved template %+v", created)
	}

	env.doJSON(t, http.MethodPost, base+"/commands", `{"command":"background","background":{"innerColor":"#fafafa","borderWidth":2,"borderColor":"#000000"}}`, faculty)
	second := env.do(t, http.MethodPost, base+"/save", nil, "", faculty)
	if second.Code != http.StatusOK {
		t.Fatalf("unexpected second save %d: %s", second.Code, second.Body.String())
	}
	var updated templates.Template
	decodeJSON(t, second, &updated)
	if updated.ID != created.ID || updated.MainBackground == nil || updated.MainBackground.InnerColor != "#fafafa" {
		t.Fatalf("expected the stored template to be updated, got %+v", updated)
	}
}

func TestEditorSaveDoesNotBlockPointerInput(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.login(t, "faculty@example.com", users.RoleFaculty)
	opened := openEditorSession(t, env, faculty, `{}`)
	base := "/editor/sessions/" + opened.SessionID

	started := make(chan struct{})
	release := make(chan struct{})
	var startOnce, releaseOnce sync.Once
	releaseWrite := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(releaseWrite)
	err := env.db.Callback().Create().Before("gorm:create").Register("test:hold_template_insert", func(tx *gorm.DB) {
		if tx.Statement.Table != "card_templates" {
			return
		}
		startOnce.Do(func() { close(started) })
		<-release
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	saveDone := make(chan int, 1)
	go func() {
		saveDone <- env.doJSON(t, http.MethodPost, base+"/save", `{"name":"Slow Save"}`, faculty).Code
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the template insert")
	}

	pointerDone := make(chan int, 1)
	go func() {
		pointerDone <- env.doJSON(t, http.MethodPost, base+"/pointer", `{"kind":"click","x":5,"y":5}`, faculty).Code
	}()
	select {
	case code := <-pointerDone:
		if code != http.StatusOK {
			t.Fatalf("unexpected pointer status %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pointer input blocked behind the template write")
	}

	releaseWrite()
	select {
	case code := <-saveDone:
		if code != http.StatusCreated {
			t.Fatalf("unexpected save status %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the save")
	}
}

func TestEditorSessionsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.login(t, "owner@example.com", users.RoleFaculty)
	other := env.login(t, "other@example.com", users.RoleAdmin)
	opened := openEditorSession(t, env, owner, `{}`)
	base := "/editor/sessions/" + opened.SessionID

	if recorder := env.do(t, http.MethodGet, base, nil, "", other); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected foreign session to be hidden, got %d", recorder.Code)
	}
	if recorder := env.do(t, http.MethodDelete, base, nil, "", owner); recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected close status %d", recorder.Code)
	}
	if recorder := env.do(t, http.MethodGet, base, nil, "", owner); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected closed session to be gone, got %d", recorder.Code)
	}
}
