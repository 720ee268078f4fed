package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// serveFile streams path to the client, setting ETag/Last-Modified from
// os.Stat and honoring conditional GETs (If-None-Match, If-Modified-Since)
// through http.ServeContent's own precondition handling.
func serveFile(c *gin.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(c, http.StatusNotFound, "not_found", "file not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "internal", "failed to stat file", nil)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal", "failed to open file", nil)
		return
	}
	defer f.Close()

	c.Header("ETag", fmt.Sprintf("%q", etagFor(info.Size(), info.ModTime().UnixNano())))
	http.ServeContent(c.Writer, c.Request, filepath.Base(path), info.ModTime(), f)
}

func etagFor(size, mtimeNano int64) string {
	return fmt.Sprintf("%x-%x", size, mtimeNano)
}

// splitExt splits "id.ext" into ("id", "ext").
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), strings.TrimPrefix(ext, ".")
}

// splitTranscriptName splits "id.lang.ext" into ("id", "lang", "ext").
func splitTranscriptName(name string) (string, string, string) {
	id, ext := splitExt(name)
	id, lang := splitExt(id)
	return id, lang, ext
}
