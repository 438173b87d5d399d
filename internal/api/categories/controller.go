package categories

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/kinovod/kino/internal/movie"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		CreateCategory(name string) (*movie.Category, error)
		ListCategories() ([]*movie.Category, error)
	}

	CategoryController struct {
		store    Store
		validate *validator.Validate
	}

	createCategoryRequest struct {
		Name string `json:"name" validate:"required,max=255"`
	}

	Dto struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
)

func New(store Store) *CategoryController {
	return &CategoryController{store: store, validate: validator.New()}
}

func (controller *CategoryController) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/", controller.create)
}

func (controller *CategoryController) list(ec echo.Context) error {
	cats, err := controller.store.ListCategories()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list categories: %v", err))
	}

	dtos := make([]Dto, len(cats))
	for i, cat := range cats {
		dtos[i] = newDto(cat)
	}

	return ec.JSON(http.StatusOK, dtos)
}

func (controller *CategoryController) create(ec echo.Context) error {
	request := createCategoryRequest{}
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("illegal request body: %v", err))
	}
	if err := controller.validate.Struct(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("request failed validation: %v", err))
	}

	cat, err := controller.store.CreateCategory(request.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("failed to create category: %v", err))
	}

	return ec.JSON(http.StatusCreated, newDto(cat))
}

func newDto(cat *movie.Category) Dto {
	return Dto{ID: cat.ID, Name: cat.Name}
}
