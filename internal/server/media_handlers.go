package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/idcards/internal/attendance"
	"github.com/MarcoPoloResearchLab/idcards/internal/photos"
	"github.com/gin-gonic/gin"
)

const maxPhotosPerUpload = 500

type attendanceRequestPayload struct {
	Type       attendance.EventType `json:"type"`
	PersonID   string               `json:"personId"`
	PersonName string               `json:"personName"`
	ClassCode  string               `json:"classCode"`
	FacultyID  string               `json:"facultyId"`
}

type uploadFailurePayload struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func (h *httpHandler) handleListPhotos(c *gin.Context) {
	list, err := h.photos.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "photo_list_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": list})
}

// handleUploadPhotos stores every file in the "photos" multipart field. Rejected
// files are reported per name and do not fail the batch.
func (h *httpHandler) handleUploadPhotos(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_multipart"})
		return
	}
	headers := form.File["photos"]
	if len(headers) == 0 || len(headers) > maxPhotosPerUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_photo_count"})
		return
	}

	stored := make([]photos.Photo, 0, len(headers))
	failed := []uploadFailurePayload{}
	for _, header := range headers {
		if header.Size > photos.MaxUploadBytes {
			failed = append(failed, uploadFailurePayload{Name: header.Filename, Error: "photos.upload.too_large"})
			continue
		}
		file, err := header.Open()
		if err != nil {
			failed = append(failed, uploadFailurePayload{Name: header.Filename, Error: "upload_read_failed"})
			continue
		}
		data, err := io.ReadAll(io.LimitReader(file, photos.MaxUploadBytes+1))
		_ = file.Close()
		if err != nil {
			failed = append(failed, uploadFailurePayload{Name: header.Filename, Error: "upload_read_failed"})
			continue
		}
		photo, err := h.photos.Upload(c.Request.Context(), header.Filename, data)
		if err != nil {
			if statusFor(err) >= http.StatusInternalServerError {
				h.respondError(c, err, "photo_upload_failed")
				return
			}
			failed = append(failed, uploadFailurePayload{Name: header.Filename, Error: errorCode(err, "photo_upload_failed")})
			continue
		}
		stored = append(stored, photo)
	}

	status := http.StatusCreated
	if len(stored) == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"photos": stored, "failed": failed})
}

func (h *httpHandler) handleListAttendance(c *gin.Context) {
	events, err := h.attendance.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "attendance_list_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// handleAppendAttendance records a scan. A classroom scan without a same-day gate
// scan is refused with allowed=false.
func (h *httpHandler) handleAppendAttendance(c *gin.Context) {
	var request attendanceRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	facultyID := strings.TrimSpace(request.FacultyID)
	if facultyID == "" && request.Type == attendance.EventClassroom {
		facultyID = currentUserID(c)
	}
	event, err := h.attendance.Append(c.Request.Context(), attendance.Event{
		Type:       request.Type,
		PersonID:   request.PersonID,
		PersonName: request.PersonName,
		ClassCode:  request.ClassCode,
		FacultyID:  facultyID,
	})
	if errors.Is(err, attendance.ErrGateEntryMissing) {
		c.JSON(http.StatusForbidden, gin.H{"allowed": false, "reason": attendance.GateRuleReason})
		return
	}
	if err != nil {
		h.respondError(c, err, "attendance_append_failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"allowed": true, "event": event})
}
