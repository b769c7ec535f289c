package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cookidoo-planner/internal/filters"
	"cookidoo-planner/internal/planner"
	"cookidoo-planner/internal/shared"
	"cookidoo-planner/internal/slots"
)

type toggleRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type overrideRequest struct {
	Categories []string        `json:"categories"`
	Cuisines   []string        `json:"cuisines"`
	MaxTime    *int            `json:"maxTime"`
	Slots      map[string]bool `json:"slots"`
}

type navRequest struct {
	Slot string `json:"slot"`
	Step int    `json:"step"`
}

type ingredientRequest struct {
	Text string `json:"text" binding:"required"`
}

// controller resolves the :user and writes the error response itself when it fails.
func (s *Server) controller(c *gin.Context) (*planner.Controller, bool) {
	ctrl, err := s.app.Planner(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return ctrl, true
}

func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		s.writeError(c, &shared.ValidationError{Field: "body", Reason: err.Error(), Err: err})
		return false
	}
	return true
}

// respond writes the user's view after a mutation, or the error.
func (s *Server) respond(c *gin.Context, ctrl *planner.Controller, err error) {
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.View())
}

func dayParam(c *gin.Context) (slots.Day, error) {
	return slots.ParseDay(c.Param("day"))
}

func daySlotParams(c *gin.Context) (slots.Day, slots.SlotKey, error) {
	day, err := dayParam(c)
	if err != nil {
		return 0, "", err
	}
	slot, err := slots.ParseSlot(c.Param("slot"))
	return day, slot, err
}

func (s *Server) state(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.View())
}

func (s *Server) setGroup(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	var req toggleRequest
	if !s.bind(c, &req) {
		return
	}
	day, err := dayParam(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	group, err := slots.ParseGroup(c.Param("group"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respond(c, ctrl, ctrl.SetMain(c.Request.Context(), day, group, *req.Active))
}

func (s *Server) setSlot(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	var req toggleRequest
	if !s.bind(c, &req) {
		return
	}
	day, slot, err := daySlotParams(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respond(c, ctrl, ctrl.SetSlot(c.Request.Context(), day, slot, *req.Active))
}

func (s *Server) setOverride(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	var req overrideRequest
	if !s.bind(c, &req) {
		return
	}
	day, err := dayParam(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	edit := planner.OverrideEdit{
		Override: filters.Override{Categories: req.Categories, Cuisines: req.Cuisines, MaxTime: req.MaxTime},
		Slots:    make(map[slots.SlotKey]bool, len(req.Slots)),
	}
	for name, on := range req.Slots {
		k, err := slots.ParseSlot(name)
		if err != nil {
			s.writeError(c, err)
			return
		}
		edit.Slots[k] = on
	}
	s.respond(c, ctrl, ctrl.ApplyOverride(c.Request.Context(), day, edit))
}

func (s *Server) setNav(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	var req navRequest
	if !s.bind(c, &req) {
		return
	}
	day, err := dayParam(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if req.Step != 0 {
		_, err = ctrl.Navigate(day, req.Step)
		s.respond(c, ctrl, err)
		return
	}
	slot, err := slots.ParseSlot(req.Slot)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respond(c, ctrl, ctrl.SetNav(day, slot))
}

func (s *Server) reroll(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	day, slot, err := daySlotParams(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respond(c, ctrl, ctrl.Reroll(c.Request.Context(), day, slot))
}

func (s *Server) setFilters(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	fs := filters.Default()
	if !s.bind(c, &fs) {
		return
	}
	s.respond(c, ctrl, ctrl.ApplyFilters(c.Request.Context(), fs))
}

func (s *Server) addIngredient(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	var req ingredientRequest
	if !s.bind(c, &req) {
		return
	}
	kind, err := filters.ParseKind(c.Param("kind"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	added, err := ctrl.AddIngredient(c.Request.Context(), kind, req.Text)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "state": ctrl.View()})
}

func (s *Server) removeIngredient(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	kind, err := filters.ParseKind(c.Param("kind"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		s.writeError(c, shared.Invalid("index", "not a number: %q", c.Param("index")))
		return
	}
	removed, err := ctrl.RemoveIngredient(c.Request.Context(), kind, index)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "state": ctrl.View()})
}

func (s *Server) generate(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}
	s.respond(c, ctrl, ctrl.Generate(c.Request.Context()))
}

func (s *Server) logout(c *gin.Context) {
	s.app.Logout(c.Param("user"))
	c.Status(http.StatusNoContent)
}

func (s *Server) exportConfig(c *gin.Context) {
	data, err := s.app.ExportConfig(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) importConfig(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		s.writeError(c, shared.Invalid("body", "unreadable: %v", err))
		return
	}
	if err := s.app.ImportConfig(c.Request.Context(), c.Param("user"), data); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteConfig(c *gin.Context) {
	if err := s.app.DeleteConfig(c.Request.Context(), c.Param("user")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
