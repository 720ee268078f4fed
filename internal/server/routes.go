package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vodcast/internal/pathutil"
)

// setupPublicRoutes wires the read-only surface readers and podcast apps
// hit: feed XML, media, artwork, transcripts, and a health check.
func setupPublicRoutes(r *gin.Engine, paths *pathutil.Manager) {
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "vodcast"})
	})

	r.GET("/feeds/:file", func(c *gin.Context) {
		feedID, ext := splitExt(c.Param("file"))
		if ext != "xml" {
			writeError(c, http.StatusNotFound, "not_found", "not found", nil)
			return
		}
		path, err := paths.FeedXMLPath(feedID)
		if err != nil {
			classifyError(c, err, map[string]string{"feed_id": feedID})
			return
		}
		serveFile(c, path)
	})

	r.GET("/media/:feedID/:file", func(c *gin.Context) {
		feedID := c.Param("feedID")
		downloadID, ext := splitExt(c.Param("file"))
		path, err := paths.MediaPath(feedID, downloadID, ext)
		if err != nil {
			classifyError(c, err, map[string]string{"feed_id": feedID, "download_id": downloadID})
			return
		}
		serveFile(c, path)
	})

	r.GET("/images/:feedID", func(c *gin.Context) {
		feedID, ext := splitExt(c.Param("feedID"))
		path, err := paths.ImagePath(feedID, "", ext)
		if err != nil {
			classifyError(c, err, map[string]string{"feed_id": feedID})
			return
		}
		serveFile(c, path)
	})

	r.GET("/images/:feedID/downloads/:file", func(c *gin.Context) {
		feedID := c.Param("feedID")
		downloadID, ext := splitExt(c.Param("file"))
		path, err := paths.ImagePath(feedID, downloadID, ext)
		if err != nil {
			classifyError(c, err, map[string]string{"feed_id": feedID, "download_id": downloadID})
			return
		}
		serveFile(c, path)
	})

	r.GET("/transcripts/:feedID/:file", func(c *gin.Context) {
		feedID := c.Param("feedID")
		downloadID, lang, ext := splitTranscriptName(c.Param("file"))
		path, err := paths.TranscriptPath(feedID, downloadID, lang, ext)
		if err != nil {
			classifyError(c, err, map[string]string{"feed_id": feedID, "download_id": downloadID})
			return
		}
		serveFile(c, path)
	})
}
