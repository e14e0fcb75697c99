package routes

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"review-insights-platform/internal/store"
	"review-insights-platform/models"
	"review-insights-platform/services"
	"review-insights-platform/utils"
)

// SetupReviewRoutes registers collection browsing, deletion and export
func SetupReviewRoutes(api *gin.RouterGroup, st store.CollectionStore, exporter *services.ExportService) {
	api.GET("/reviews", func(c *gin.Context) {
		limit, ok := queryLimit(c, store.DefaultReadAllLimit)
		if !ok {
			return
		}
		if limit == 0 {
			limit = store.DefaultReadAllLimit
		}

		var reviews []models.ReviewRecord
		var err error
		if name := c.Query("collectionName"); name != "" {
			if err := store.ValidateCollectionName(name); err != nil {
				respondError(c, err)
				return
			}
			reviews, err = st.Read(c.Request.Context(), name, limit)
		} else {
			reviews, err = st.ReadAll(c.Request.Context(), c.Query("platform"), limit)
			if productName := strings.ToLower(c.Query("productName")); productName != "" && err == nil {
				filtered := reviews[:0]
				for _, r := range reviews {
					if strings.Contains(strings.ToLower(r.ProductName), productName) {
						filtered = append(filtered, r)
					}
				}
				reviews = filtered
			}
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"reviews": reviews,
			"total":   len(reviews),
			"limit":   limit,
		})
	})

	api.DELETE("/reviews", func(c *gin.Context) {
		name := c.Query("collectionName")
		if name == "" {
			utils.RespondWithBadRequest(c, "collectionName is required", nil)
			return
		}
		if err := store.ValidateCollectionName(name); err != nil {
			respondError(c, err)
			return
		}

		deleted, err := st.Delete(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		if !deleted {
			utils.RespondWithNotFound(c, fmt.Sprintf("collection %s not found", name))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"message":           fmt.Sprintf("collection %s deleted", name),
			"deletedCollection": name,
		})
	})

	api.GET("/collections", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		collections, err := st.ListCollections(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "collections": collections, "total": len(collections)})
	})

	api.GET("/collections/:name/export", func(c *gin.Context) {
		name := c.Param("name")
		if err := store.ValidateCollectionName(name); err != nil {
			respondError(c, err)
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()
		file, err := exporter.ExportCollection(ctx, name, c.DefaultQuery("format", services.ExportFormatJSON))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", file.Filename))
		c.Header("X-Record-Count", strconv.Itoa(file.RecordCount))
		c.Data(http.StatusOK, file.ContentType, file.Data)
	})

	api.POST("/collections/:name/import", func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "an xlsx file is required in the \"file\" field", nil)
			return
		}
		f, err := header.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()
		res, err := exporter.ImportXLSX(ctx, c.Param("name"), c.PostForm("platform"), c.PostForm("productName"), f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "import": res})
	})

	api.GET("/storage/stats", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		stats, err := st.Stats(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	})
}
