package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mkobayashi/kaitori-backend/internal/app/service"
	apperrors "github.com/mkobayashi/kaitori-backend/internal/errors"
	"github.com/mkobayashi/kaitori-backend/internal/middleware"
)

type VariantController struct {
	variantService service.VariantService
}

func NewVariantController(variantService service.VariantService) *VariantController {
	return &VariantController{
		variantService: variantService,
	}
}

// ListVariants returns the buyback catalog
// GET /api/v1/variants
func (ctrl *VariantController) ListVariants(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	variants, err := ctrl.variantService.GetAllVariants()
	if err != nil {
		log.Error("Failed to list variants", err, nil)
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"variants": variants,
		"count":    len(variants),
	})
}

// GetVariantByID returns one catalog entry
// GET /api/v1/variants/:id
func (ctrl *VariantController) GetVariantByID(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "IDの形式が正しくありません")
		return
	}

	variant, err := ctrl.variantService.GetVariantByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrVariantNotFound) {
			apperrors.NotFound(c, apperrors.VariantNotFound, "対象の機種が見つかりません")
			return
		}
		log.Error("Failed to fetch variant", err, map[string]interface{}{
			"variant_id": id,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"variant": variant})
}
