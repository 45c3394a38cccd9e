package handler

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"inventory/internal/middleware"
	"inventory/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /api/products
type ProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 商品のルートを登録（gは認証済みグループ）
func (h *ProductHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/products", h.list)
	g.GET("/products/search", h.search)
	g.POST("/products", h.create)
	g.POST("/products/delete-many", h.deleteMany)
	g.GET("/products/:id", h.detail)
	g.PUT("/products/:id", h.update)
	g.DELETE("/products/:id", h.delete)
	g.GET("/products/:id/history", h.history)
}

// JSONのとき。未指定はnil
type productBody struct {
	Name     *string `json:"name"`
	Unit     *string `json:"unit"`
	Category *string `json:"category"`
	Brand    *string `json:"brand"`
	Stock    *int64  `json:"stock"`
}

type deleteManyRequest struct {
	IDs []string `json:"ids"`
}

func (h *ProductHandler) list(c echo.Context) error {
	out, err := h.uc.ListProducts(c.Request().Context(), c.QueryParams())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, ListResponse{
		Success:    true,
		Count:      len(out.Items),
		Pagination: &out.Pagination,
		Data:       out.Items,
	})
}

func (h *ProductHandler) search(c echo.Context) error {
	items, err := h.uc.SearchProducts(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse{Success: true, Count: len(items), Data: items})
}

func (h *ProductHandler) detail(c echo.Context) error {
	p, err := h.uc.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, http.StatusOK, p)
}

func (h *ProductHandler) create(c echo.Context) error {
	actor, found := middleware.ActorFrom(c)
	if !found {
		return unauthorized(c)
	}

	body, image, cleanup, err := readProductRequest(c)
	defer cleanup()
	if err != nil {
		return writeError(c, err)
	}

	in := usecase.CreateProductInput{}
	if body.Name != nil {
		in.Name = *body.Name
	}
	if body.Unit != nil {
		in.Unit = *body.Unit
	}
	if body.Category != nil {
		in.Category = *body.Category
	}
	if body.Brand != nil {
		in.Brand = *body.Brand
	}
	if body.Stock != nil {
		in.Stock = *body.Stock
	}

	p, err := h.uc.CreateProduct(c.Request().Context(), actor, in, image)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, http.StatusCreated, p)
}

func (h *ProductHandler) update(c echo.Context) error {
	actor, found := middleware.ActorFrom(c)
	if !found {
		return unauthorized(c)
	}

	body, image, cleanup, err := readProductRequest(c)
	defer cleanup()
	if err != nil {
		return writeError(c, err)
	}

	p, err := h.uc.UpdateProduct(c.Request().Context(), c.Param("id"), actor, usecase.ProductChanges{
		Name:     body.Name,
		Unit:     body.Unit,
		Category: body.Category,
		Brand:    body.Brand,
		Stock:    body.Stock,
	}, image)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, http.StatusOK, p)
}

func (h *ProductHandler) delete(c echo.Context) error {
	actor, found := middleware.ActorFrom(c)
	if !found {
		return unauthorized(c)
	}

	if err := h.uc.DeleteProduct(c.Request().Context(), c.Param("id"), actor); err != nil {
		return writeError(c, err)
	}
	return ok(c, http.StatusOK, struct{}{})
}

func (h *ProductHandler) deleteMany(c echo.Context) error {
	actor, found := middleware.ActorFrom(c)
	if !found {
		return unauthorized(c)
	}

	var req deleteManyRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.IDs == nil {
		return c.JSON(http.StatusBadRequest, errorJSON("Please provide an array of product IDs"))
	}

	n, err := h.uc.DeleteManyProducts(c.Request().Context(), req.IDs, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, DataResponse{
		Success: true,
		Data:    struct{}{},
		Message: "Deleted " + strconv.FormatInt(n, 10) + " products",
	})
}

func (h *ProductHandler) history(c echo.Context) error {
	entries, err := h.uc.ProductHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ListResponse{Success: true, Count: len(entries), Data: entries})
}

// JSONかmultipart（image付き）を読む。cleanupは必ず呼ぶ
func readProductRequest(c echo.Context) (productBody, *usecase.ImageUpload, func(), error) {
	noop := func() {}
	ctype := c.Request().Header.Get(echo.HeaderContentType)

	if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) && !strings.HasPrefix(ctype, echo.MIMEApplicationForm) {
		var body productBody
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return productBody{}, nil, noop, usecase.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
		return body, nil, noop, nil
	}

	form, err := c.FormParams()
	if err != nil {
		return productBody{}, nil, noop, usecase.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	body, err := bodyFromForm(form)
	if err != nil {
		return productBody{}, nil, noop, err
	}

	if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		return body, nil, noop, nil
	}

	mf, err := c.MultipartForm()
	if err != nil {
		return productBody{}, nil, noop, usecase.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	cleanup := func() { _ = mf.RemoveAll() }

	files := mf.File["image"]
	if len(files) == 0 {
		return body, nil, cleanup, nil
	}
	image, closeFile, err := openUpload(files[0])
	if err != nil {
		return productBody{}, nil, cleanup, err
	}
	return body, image, func() { closeFile(); cleanup() }, nil
}

func bodyFromForm(form url.Values) (productBody, error) {
	var body productBody
	pick := func(key string) *string {
		if _, found := form[key]; !found {
			return nil
		}
		v := form.Get(key)
		return &v
	}

	body.Name = pick("name")
	body.Unit = pick("unit")
	body.Category = pick("category")
	body.Brand = pick("brand")
	if raw := pick("stock"); raw != nil {
		n, err := strconv.ParseInt(strings.TrimSpace(*raw), 10, 64)
		if err != nil {
			return productBody{}, usecase.NewHTTPError(http.StatusBadRequest, "stock must be an integer")
		}
		body.Stock = &n
	}
	return body, nil
}

func openUpload(fh *multipart.FileHeader) (*usecase.ImageUpload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, usecase.NewHTTPError(http.StatusBadRequest, "could not read image")
	}
	return &usecase.ImageUpload{Filename: fh.Filename, Content: f}, func() { _ = f.Close() }, nil
}
