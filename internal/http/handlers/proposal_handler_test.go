package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProposalHandler_CreateDraft_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ProposalHandler{proposals: nil}
	r.POST("/proposals", handler.CreateDraft)

	req, _ := http.NewRequest("POST", "/proposals", strings.NewReader(`{"title":"t","category":"c","estimated_time":10}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProposalHandler_Get_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ProposalHandler{proposals: nil}
	r.GET("/proposals/:id", handler.Get)

	req, _ := http.NewRequest("GET", "/proposals/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProposalHandler_Get_NegativeID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ProposalHandler{proposals: nil}
	r.GET("/proposals/:id", handler.Get)

	req, _ := http.NewRequest("GET", "/proposals/-3", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProposalHandler_Submit_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ProposalHandler{proposals: nil}
	r.POST("/proposals/:id/submit", handler.Submit)

	req, _ := http.NewRequest("POST", "/proposals/1/submit", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProposalHandler_Delete_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ProposalHandler{proposals: nil}
	r.DELETE("/proposals/:id", handler.Delete)

	req, _ := http.NewRequest("DELETE", "/proposals/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeliverableHandler_Add_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &DeliverableHandler{deliverables: nil}
	r.POST("/proposals/:id/deliverables", handler.Add)

	req, _ := http.NewRequest("POST", "/proposals/1/deliverables", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeliverableHandler_Get_InvalidDeliverableID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &DeliverableHandler{deliverables: nil}
	r.GET("/proposals/:id/deliverables/:deliverableId", handler.Get)

	req, _ := http.NewRequest("GET", "/proposals/1/deliverables/zero", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
