package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/teamvoice/internal/app/orch"
	"github.com/dkeye/teamvoice/internal/domain"
)

func handleHealth(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": o.Conns.Count(),
		})
	}
}

// GET /api/rooms
func handleListRooms(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.Rooms()})
	}
}

// GET /api/rooms/:room
func handleGetRoom(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, ok := o.Rooms.Snapshot(domain.RoomID(c.Param("room")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}
