package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
	"github.com/MatiRivarola/impostor-backend/internal/repository"
	"github.com/MatiRivarola/impostor-backend/internal/service"
)

// RoomHandler 封装了房间相关的 HTTP 查询接口。
// 加入/创建等有状态操作走 WebSocket；这里只提供加入前的只读查询。
type RoomHandler struct {
	roomService *service.RoomService
	archiveRepo repository.ArchiveRepository
}

// NewRoomHandler 创建 RoomHandler 实例。archiveRepo 可为 nil（禁用历史查询）。
func NewRoomHandler(roomService *service.RoomService, archiveRepo repository.ArchiveRepository) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, archiveRepo: archiveRepo}
}

// Lookup 处理加入前的房间查询：GET /api/rooms/:code
// 只暴露是否可加入，不泄露任何游戏内状态。
func (h *RoomHandler) Lookup(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))

	info, err := h.roomService.Lookup(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, info)
}

// Themes 返回可用的词库主题列表：GET /api/themes
func (h *RoomHandler) Themes(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{"themes": domain.Themes()})
}

// RecentGames 返回最近结束的对局归档：GET /api/games/recent?limit=20
func (h *RoomHandler) RecentGames(c *gin.Context) {
	if h.archiveRepo == nil {
		ErrorResponse(c, http.StatusNotFound, "game history is not enabled")
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			ErrorResponse(c, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	records, err := h.archiveRepo.Recent(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to load recent games")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to load recent games")
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"games": records})
}
