package handler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"inventory/internal/infra/csvio"
	"inventory/internal/middleware"
	"inventory/internal/usecase"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
)

// CSVのインポート/エクスポート
type ImportHandler struct {
	uc          *usecase.ImportUsecase
	maxCSVBytes int64
}

func NewImportHandler(uc *usecase.ImportUsecase, maxCSVBytes int64) *ImportHandler {
	return &ImportHandler{uc: uc, maxCSVBytes: maxCSVBytes}
}

func (h *ImportHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/products/export", h.export)
	g.POST("/products/import", h.importCSV)
}

func (h *ImportHandler) export(c echo.Context) error {
	actor, found := middleware.ActorFrom(c)
	if !found {
		return unauthorized(c)
	}

	var buf bytes.Buffer
	if err := h.uc.ExportProducts(c.Request().Context(), &buf, actor.UserID); err != nil {
		return writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=products.csv")
	return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *ImportHandler) importCSV(c echo.Context) error {
	actor, found := middleware.ActorFrom(c)
	if !found {
		return unauthorized(c)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("No file uploaded"))
	}
	//一時ファイルは成功・失敗に関わらず消す
	if mf, err := c.MultipartForm(); err == nil {
		defer func() { _ = mf.RemoveAll() }()
	}

	if fh.Size > h.maxCSVBytes {
		return c.JSON(http.StatusBadRequest, errorJSON("File is too large"))
	}
	if !looksLikeCSV(fh) {
		return c.JSON(http.StatusBadRequest, errorJSON("Please upload a CSV file"))
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("Could not read uploaded file"))
	}
	defer src.Close()

	if !isText(src) {
		return c.JSON(http.StatusBadRequest, errorJSON("Please upload a CSV file"))
	}

	sum, err := h.uc.ImportProducts(c.Request().Context(), csvio.NewRowReader(src), actor.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func looksLikeCSV(fh *multipart.FileHeader) bool {
	if strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		return true
	}
	ctype := strings.ToLower(fh.Header.Get(echo.HeaderContentType))
	return strings.HasPrefix(ctype, "text/csv") || strings.HasPrefix(ctype, "application/vnd.ms-excel")
}

// 中身がテキストか確認して先頭に戻す
func isText(f multipart.File) bool {
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
