package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"vodcast/internal/coordinator"
	"vodcast/internal/domain"
	"vodcast/internal/metrics"
	"vodcast/internal/scheduler"
	"vodcast/internal/store"
)

// setupAdminRoutes wires the operator surface: requeues, metadata
// refresh, manual submissions, and the prometheus scrape endpoint.
func setupAdminRoutes(r *gin.Engine, s store.Store, c *coordinator.Coordinator, sch *scheduler.FeedScheduler, reg *prometheus.Registry) {
	admin := r.Group("/admin")

	admin.POST("/feeds/:feedID/requeue", func(c2 *gin.Context) {
		feedID := c2.Param("feedID")
		count, err := s.RequeueAllInStatus(c2.Request.Context(), feedID, domain.StatusError)
		if err != nil {
			classifyError(c2, err, map[string]string{"feed_id": feedID})
			return
		}
		sch.Submit(feedID)
		c2.JSON(http.StatusAccepted, gin.H{"feed_id": feedID, "requeue_count": count})
	})

	admin.POST("/feeds/:feedID/downloads/:downloadID/requeue", func(c2 *gin.Context) {
		feedID, downloadID := c2.Param("feedID"), c2.Param("downloadID")
		key := domain.DownloadKey{FeedID: feedID, ID: downloadID}
		ctx := c2.Request.Context()
		if _, err := s.GetDownload(ctx, key); err != nil {
			classifyError(c2, err, map[string]string{"feed_id": feedID, "download_id": downloadID})
			return
		}
		if err := s.RequeueDownload(ctx, key, domain.StatusError); err != nil {
			classifyError(c2, err, map[string]string{"feed_id": feedID, "download_id": downloadID})
			return
		}
		sch.Submit(feedID)
		c2.JSON(http.StatusAccepted, gin.H{"feed_id": feedID, "download_id": downloadID, "status": domain.StatusQueued})
	})

	admin.POST("/feeds/:feedID/downloads/:downloadID/refresh-metadata", func(c2 *gin.Context) {
		feedID, downloadID := c2.Param("feedID"), c2.Param("downloadID")
		refreshTranscript := c2.Query("refresh_transcript") == "true"
		key := domain.DownloadKey{FeedID: feedID, ID: downloadID}

		result, err := c.RefreshDownloadMetadata(c2.Request.Context(), key, refreshTranscript)
		if err != nil {
			classifyError(c2, err, map[string]string{"feed_id": feedID, "download_id": downloadID})
			return
		}
		c2.JSON(http.StatusOK, gin.H{
			"metadata_changed":     result.MetadataChanged,
			"updated_fields":       result.UpdatedFields,
			"thumbnail_refreshed":  result.ThumbnailRefreshed,
			"transcript_refreshed": result.TranscriptRefreshed,
		})
	})

	admin.POST("/feeds/:feedID/downloads", func(c2 *gin.Context) {
		feedID := c2.Param("feedID")
		var body struct {
			URL string `json:"url" binding:"required"`
		}
		if err := c2.ShouldBindJSON(&body); err != nil {
			writeError(c2, http.StatusBadRequest, "invalid_request", err.Error(), map[string]string{"feed_id": feedID})
			return
		}

		result, err := c.AddManualSubmission(c2.Request.Context(), feedID, body.URL)
		if err != nil {
			classifyError(c2, err, map[string]string{"feed_id": feedID})
			return
		}
		sch.Submit(feedID)
		c2.JSON(http.StatusOK, gin.H{
			"feed_id":     result.FeedID,
			"download_id": result.DownloadID,
			"status":      result.Status,
			"new":         result.New,
			"message":     result.Message,
		})
	})

	admin.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
}
